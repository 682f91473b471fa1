package api

import (
	"sort"
	"time"

	"loom/internal/queue"
	"loom/internal/workflow"
)

// FromQueueItem converts a queue item into its API representation.
func FromQueueItem(item *queue.Item) WorkflowItem {
	if item == nil {
		return WorkflowItem{}
	}
	dto := WorkflowItem{
		ID:           item.ID,
		EntityID:     item.EntityID,
		NaturalKey:   item.NaturalKey,
		Title:        item.Title,
		SourceRef:    item.SourceRef,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
		ErrorKind:    item.ErrorKind,
		Progress: WorkflowProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		CreatedAt: formatTime(item.CreatedAt),
		UpdatedAt: formatTime(item.UpdatedAt),
	}
	if len(item.Attempts) > 0 {
		dto.Attempts = make(map[string]int, len(item.Attempts))
		for stage, count := range item.Attempts {
			dto.Attempts[stage] = count
		}
	}
	if item.CompletedAt != nil {
		dto.CompletedAt = formatTime(*item.CompletedAt)
	}
	return dto
}

// FromQueueItems converts a slice of queue items, preserving order.
func FromQueueItems(items []*queue.Item) []WorkflowItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]WorkflowItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts the workflow manager summary into API form.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	if summary.LastItem != nil {
		item := FromQueueItem(summary.LastItem)
		status.LastItem = &item
	}
	names := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		health := summary.StageHealth[name]
		status.StageHealth = append(status.StageHealth, StageHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return status
}

// MergeQueueStats converts status-keyed counts into string keys for JSON.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	if len(stats) == 0 {
		return map[string]int{}
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}
