package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loom/internal/logging"
	"loom/internal/queue"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	stages := make([]pipelineStage, len(m.stages))
	copy(stages, m.stages)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.concurrency
	if workers <= 0 {
		workers = 1
	}
	m.wg.Add(len(stages) * workers)
	m.mu.Unlock()

	for _, stg := range stages {
		for i := 0; i < workers; i++ {
			go m.runStageWorker(runCtx, stg, i)
		}
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// ReclaimStale sweeps every stage's processing status for items whose
// heartbeat expired, returning them to their stage start and reporting how
// many were recovered. The daemon runs this once at startup so work orphaned
// by a crash is picked up immediately.
func (m *Manager) ReclaimStale(ctx context.Context) (int64, error) {
	m.mu.RLock()
	transitions := make(map[queue.Status]queue.Status, len(m.reclaimTransitions))
	for processing, start := range m.reclaimTransitions {
		transitions[processing] = start
	}
	m.mu.RUnlock()

	logger := logging.NewComponentLogger(m.logger, "workflow-manager")
	return m.heartbeat.ReclaimStaleItems(ctx, logger, transitions)
}

func (m *Manager) runStageWorker(ctx context.Context, stg pipelineStage, worker int) {
	defer m.wg.Done()

	logger := logging.NewComponentLogger(m.logger, "workflow-"+stg.name).With(
		logging.Int("worker", worker),
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The first worker of each stage doubles as the reclaim sweeper so a
		// crashed processor's work is redelivered.
		if worker == 0 {
			if _, err := m.heartbeat.ReclaimStaleItems(ctx, logger, map[queue.Status]queue.Status{
				stg.processingStatus: stg.startStatus,
			}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale processing failed; stuck items may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}

		item, err := m.store.NextForStatuses(ctx, stg.startStatus)
		if err != nil {
			m.handleNextItemError(ctx, logger, err)
			continue
		}
		if item == nil {
			m.waitForItemOrShutdown(ctx)
			continue
		}

		if err := m.processItem(ctx, stg, logger, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) handleNextItemError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
