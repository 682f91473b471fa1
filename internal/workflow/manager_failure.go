package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/services"
)

// handleStageFailure classifies the error and either re-queues the stage for
// another attempt or marks the workflow failed. Unknown errors are fatal so
// defects surface instead of looping.
func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, item *queue.Item, stageErr error) {
	m.setLastError(stageErr)

	details := services.Details(stageErr)
	attempts := item.Attempt(stg.name)
	limit := m.cfg.Workflow.StageAttemptLimit
	requeue := services.Retryable(stageErr) && attempts < limit

	attrs := []logging.Attr{
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Bool("requeued", requeue),
	}

	if requeue {
		item.Status = stg.startStatus
		item.LastHeartbeat = nil
		item.ErrorMessage = ""
		item.ErrorKind = ""
		item.ProgressMessage = failureMessage(stg.name, details)
		stageLogger.Warn("stage failed, re-queued for retry", logging.Args(attrs...)...)
	} else {
		item.SetFailed(failureMessage(stg.name, details), string(details.Kind))
		item.LastHeartbeat = nil
		attrs = append(attrs, logging.Alert("stage_failure"))
		stageLogger.Error("stage failed", logging.Args(attrs...)...)
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.Update(persistCtx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("daemon shutting down, could not update stage failure")
		} else {
			stageLogger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastItem(item)

	if !requeue {
		m.notifyFailed(persistCtx, stg.name, item, stageErr)
		return
	}

	// Back off before the stage becomes eligible again so a flapping
	// collaborator is not hammered.
	delay := time.Duration(m.cfg.Workflow.StageRetryDelay) * time.Second
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

func failureMessage(stageName string, details services.ErrorDetails) string {
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = stageName + " failed without error detail"
	}
	return message
}
