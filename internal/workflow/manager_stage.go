package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/internal/locks"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services"
	"loom/internal/stage"
)

func (m *Manager) processItem(ctx context.Context, stg pipelineStage, workerLogger *slog.Logger, item *queue.Item) error {
	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(
		services.WithStage(
			services.WithEntityID(
				services.WithWorkflowID(ctx, item.ID),
				item.EntityID),
			stg.name),
		requestID)
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	if skipper, ok := stg.handler.(stage.Skippable); ok {
		run, err := skipper.ShouldRun(stageCtx, item)
		if err != nil {
			m.handleStageFailure(stageCtx, stg, stageLogger, item, err)
			return err
		}
		if !run {
			return m.skipStage(stageCtx, stg, stageLogger, item)
		}
	}

	claimed, err := m.store.Claim(stageCtx, item.ID, stg.startStatus, stg.processingStatus, stg.name)
	if err != nil {
		m.setLastError(err)
		return err
	}
	if !claimed {
		// Another worker won the item between the poll and the claim.
		return nil
	}

	item, err = m.store.GetByID(stageCtx, item.ID)
	if err != nil || item == nil {
		if err == nil {
			err = errors.New("claimed item vanished")
		}
		m.setLastError(err)
		return err
	}
	item.IncrementAttempt(stg.name)
	m.setLastItem(item)

	// The claim is the per-item arbiter, so exactly one worker reaches this
	// acquisition for a given item. The lock serializes workflows that
	// target the same entity.
	lease, err := m.locks.Acquire(stageCtx, item.EntityID, item.ID, stg.name)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		stageLogger.Warn("entity lock not acquired",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_acquire_failed"),
		)
		m.handleStageFailure(stageCtx, stg, stageLogger, item, err)
		return err
	}
	lockHeld := true
	defer func() {
		if lockHeld {
			if err := lease.Release(context.WithoutCancel(stageCtx)); err != nil {
				stageLogger.Warn("entity lock release failed", logging.Error(err))
			}
		}
	}()

	return m.executeStage(stageCtx, stg, stageLogger, item, lease, &lockHeld)
}

func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, item *queue.Item, lease *locks.Lease, lockHeld *bool) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int(logging.FieldAttempt, item.Attempt(stg.name)),
	)

	if err := stg.handler.Prepare(ctx, item); err != nil {
		m.handleStageFailure(ctx, stg, stageLogger, item, err)
		return err
	}
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	accumulated, err := m.results.Accumulated(ctx, item.ID)
	if err != nil {
		m.handleStageFailure(ctx, stg, stageLogger, item, err)
		return err
	}

	exchange := &stage.Exchange{
		Item:        item,
		Accumulated: accumulated,
		Progress: func(percent float64, message string) {
			item.SetProgress(stg.name, message, stg.overallProgress(percent))
			if err := m.store.Update(ctx, item); err != nil {
				stageLogger.Debug("progress update not persisted", logging.Error(err))
			}
		},
	}

	payload, execErr := m.executeWithHeartbeat(ctx, stg, item, lease, exchange)
	if execErr != nil {
		if errors.Is(execErr, locks.ErrNotHeld) {
			// The lock was reclaimed mid-flight; the new holder owns the
			// item now, so nothing may be persisted from this execution.
			*lockHeld = false
			stageLogger.Warn("entity lock reclaimed during execution; discarding stage output",
				logging.String(logging.FieldEventType, "lock_reclaimed"),
			)
			return nil
		}
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg, stageLogger, item, execErr)
		return execErr
	}

	// Lock ownership is verified before anything from this execution is
	// persisted; a reclaimed entity belongs to the new holder wholesale.
	if err := lease.Refresh(ctx, stg.name); err != nil {
		if errors.Is(err, locks.ErrNotHeld) {
			*lockHeld = false
			stageLogger.Warn("entity lock lost before advance; discarding stage output",
				logging.String(logging.FieldEventType, "lock_reclaimed"),
			)
			return nil
		}
		m.setLastError(err)
		return err
	}

	// The accumulator write is acknowledged before the status advance so the
	// next stage always observes this stage's output.
	if payload != nil {
		if err := m.results.Save(ctx, item.ID, stg.name, payload); err != nil {
			m.handleStageFailure(ctx, stg, stageLogger, item, err)
			return err
		}
	}

	item.Status = stg.doneStatus
	item.LastHeartbeat = nil
	item.SetProgress(stg.name, stg.name+" completed", stg.overallProgress(100))
	if item.Status == queue.StatusCompleted {
		m.finalizeCompleted(item)
	}
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastItem(item)

	if item.Status == queue.StatusCompleted {
		m.notifyCompleted(ctx, item)
		m.scheduleResultsCleanup(item.ID)
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, item *queue.Item, lease *locks.Lease, exchange *stage.Exchange) (payload results.Payload, err error) {
	execCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(execCtx, &hbWG, item, stg.name, lease, cancel)

	payload, err = stg.handler.Execute(execCtx, exchange)
	cancel(nil)
	hbWG.Wait()

	if err != nil && errors.Is(context.Cause(execCtx), locks.ErrNotHeld) {
		return nil, locks.ErrNotHeld
	}
	return payload, err
}

func (m *Manager) skipStage(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, item *queue.Item) error {
	moved, err := m.store.Claim(ctx, item.ID, stg.startStatus, stg.doneStatus, stg.name)
	if err != nil {
		m.setLastError(err)
		return err
	}
	if moved {
		stageLogger.Info("stage skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String("next_status", string(stg.doneStatus)),
		)
	}
	return nil
}

func (m *Manager) finalizeCompleted(item *queue.Item) {
	now := time.Now().UTC()
	item.CompletedAt = &now
	item.ProgressPercent = 100
	item.ProgressMessage = "Workflow completed"
	item.ErrorMessage = ""
	item.ErrorKind = ""
}

func (m *Manager) scheduleResultsCleanup(workflowID string) {
	grace := time.Duration(m.cfg.Workflow.CleanupGraceSeconds) * time.Second
	time.AfterFunc(grace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.results.Clear(ctx, workflowID); err != nil && m.logger != nil {
			m.logger.Warn("stage result cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldWorkflowID, workflowID),
			)
		}
	})
}
