package workflow

import (
	"context"

	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/services"
)

func (m *Manager) notifyCompleted(ctx context.Context, item *queue.Item) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventWorkflowCompleted, notifications.Payload{
		"title":      item.Title,
		"naturalKey": item.NaturalKey,
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) notifyFailed(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	if m.notifier == nil {
		return
	}
	details := services.Details(stageErr)
	err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventWorkflowFailed, notifications.Payload{
		"title":   item.Title,
		"context": stageName,
		"error":   details.Message,
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("failure notification failed", logging.Error(err))
	}
}
