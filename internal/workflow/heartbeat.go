package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loom/internal/locks"
	"loom/internal/logging"
	"loom/internal/queue"
)

// HeartbeatMonitor keeps in-flight items visibly alive: it refreshes the
// queue heartbeat and the entity lock while a stage runs, and sweeps items
// whose processor stopped heartbeating back to their stage start.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleItems resets items that stopped sending heartbeats back to the
// start status of their stage.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context, logger *slog.Logger, transitions map[queue.Status]queue.Status) (int64, error) {
	if h.heartbeatTimeout <= 0 || len(transitions) == 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff, transitions)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale items",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed, nil
}

// StartLoop refreshes the item heartbeat and the entity lease until
// cancellation. A lease refresh answered with ErrNotHeld means the entity
// was reclaimed: the loop cancels the stage execution with that cause and
// exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, item *queue.Item, stageName string, lease *locks.Lease, cancel context.CancelCauseFunc) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, item.ID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			if err := lease.Refresh(ctx, stageName); err != nil {
				if errors.Is(err, locks.ErrNotHeld) {
					logger.Warn("entity lock reclaimed, cancelling stage",
						logging.String(logging.FieldEventType, "lock_reclaimed"),
					)
					cancel(locks.ErrNotHeld)
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("entity lock refresh failed", logging.Error(err))
			}
		}
	}
}
