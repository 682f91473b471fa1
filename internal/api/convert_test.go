package api_test

import (
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/queue"
	"loom/internal/stage"
	"loom/internal/workflow"
)

func TestFromQueueItemCarriesProgressAndAttempts(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	completed := created.Add(time.Hour)
	item := &queue.Item{
		ID:          "wf-1",
		EntityID:    "SKU-100",
		NaturalKey:  "walnut-desk",
		Title:       "Walnut Desk",
		Status:      queue.StatusCompleted,
		Attempts:    map[string]int{"extract": 2},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
	}
	item.SetProgress("sync", "Workflow completed", 100)

	dto := api.FromQueueItem(item)
	if dto.ID != "wf-1" || dto.Status != "completed" || dto.NaturalKey != "walnut-desk" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.Progress.Stage != "sync" || dto.Progress.Percent != 100 {
		t.Fatalf("unexpected progress: %+v", dto.Progress)
	}
	if dto.Attempts["extract"] != 2 {
		t.Fatalf("unexpected attempts: %+v", dto.Attempts)
	}
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("unexpected created timestamp: %q", dto.CreatedAt)
	}
	if dto.CompletedAt == "" {
		t.Fatal("expected completed timestamp")
	}
}

func TestFromStatusSummarySortsStageHealth(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:    true,
		QueueStats: map[queue.Status]int{queue.StatusPending: 3},
		StageHealth: map[string]stage.Health{
			"sync":    stage.Healthy("sync"),
			"extract": stage.Unhealthy("extract", "extractor.url is not configured"),
		},
	}

	status := api.FromStatusSummary(summary)
	if !status.Running || status.QueueStats["pending"] != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.StageHealth) != 2 || status.StageHealth[0].Name != "extract" || status.StageHealth[1].Name != "sync" {
		t.Fatalf("expected sorted stage health, got %+v", status.StageHealth)
	}
	if status.StageHealth[0].Ready || status.StageHealth[0].Detail == "" {
		t.Fatalf("unexpected extract health: %+v", status.StageHealth[0])
	}
}
