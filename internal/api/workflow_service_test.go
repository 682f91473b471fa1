package api_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/queue"
	"loom/internal/testsupport"
)

func newService(t *testing.T) (*api.WorkflowService, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return api.NewWorkflowService(store, time.Minute), store
}

func TestSubmitReturnsItemAndExistingFlag(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, api.SubmitRequest{EntityID: "SKU-100", Title: "Walnut Desk"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if first.Existing {
		t.Fatal("first submission should not report existing")
	}
	if first.Item.Status != string(queue.StatusPending) {
		t.Fatalf("unexpected status: %q", first.Item.Status)
	}

	second, err := svc.Submit(ctx, api.SubmitRequest{EntityID: "SKU-100"})
	if err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}
	if !second.Existing || second.Item.ID != first.Item.ID {
		t.Fatalf("expected existing workflow returned, got %+v", second)
	}
}

func TestListFiltersByState(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	pending := testsupport.Submit(t, store, "SKU-1", "One")
	failed := testsupport.Submit(t, store, "SKU-2", "Two")
	failed.SetFailed("extraction exploded", "transient_infrastructure")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	items, err := svc.List(ctx, "pending")
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if len(items) != 1 || items[0].ID != pending.ID {
		t.Fatalf("unexpected pending view: %+v", items)
	}

	items, err = svc.List(ctx, api.ViewActive)
	if err != nil {
		t.Fatalf("List active: %v", err)
	}
	if len(items) != 1 || items[0].ID != pending.ID {
		t.Fatalf("unexpected active view: %+v", items)
	}

	items, err = svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if _, err := svc.List(ctx, "bogus"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestStuckViewUsesThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewWorkflowService(store, time.Millisecond)
	ctx := context.Background()

	item := testsupport.Submit(t, store, "SKU-1", "One")
	time.Sleep(5 * time.Millisecond)

	stuck, err := svc.List(ctx, api.ViewStuck)
	if err != nil {
		t.Fatalf("List stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != item.ID {
		t.Fatalf("expected item reported stuck, got %+v", stuck)
	}
}

func TestDescribeAndRetry(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	item := testsupport.Submit(t, store, "SKU-1", "One")
	item.SetFailed("sync exploded", "transient_infrastructure")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	described, err := svc.Describe(ctx, item.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if described == nil || described.ErrorMessage != "sync exploded" {
		t.Fatalf("unexpected describe result: %+v", described)
	}

	missing, err := svc.Describe(ctx, "no-such-id")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing item, got %+v err=%v", missing, err)
	}

	updated, err := svc.Retry(ctx, item.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 item retried, got %d", updated)
	}
	reloaded, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", reloaded.Status)
	}
}
