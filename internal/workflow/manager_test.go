package workflow_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services"
	"loom/internal/stage"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

func TestHappyPathRunsStagesInOrder(t *testing.T) {
	trace := &executionTrace{}
	extract := &stubHandler{name: "extract", trace: trace}
	draft := &stubHandler{name: "draft", trace: trace}
	enrich := &stubHandler{name: "enrich", trace: trace}
	images := &skippableHandler{stubHandler: stubHandler{name: "images", trace: trace}, shouldRun: true}
	sync := &stubHandler{name: "sync", trace: trace}

	h := newHarness(t, workflow.StageSet{
		Extractor: extract,
		Drafter:   draft,
		Enricher:  enrich,
		Imagery:   images,
		Syncer:    sync,
	}, nil)
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-1", "Walnut Desk")
	done := h.waitForStatus(t, item.ID, queue.StatusCompleted)

	if done.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %.1f", done.ProgressPercent)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	want := []string{"extract", "draft", "enrich", "images", "sync"}
	got := trace.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage order violated: expected %v, got %v", want, got)
		}
	}
}

func TestAccumulatedDataReachesLaterStages(t *testing.T) {
	extract := &stubHandler{name: "extract", execute: func(_ int, _ *stage.Exchange) (results.Payload, error) {
		return results.Payload{"sku": "sku-2", "title": "Oak Shelf"}, nil
	}}
	draft := &stubHandler{name: "draft", execute: func(_ int, ex *stage.Exchange) (results.Payload, error) {
		// Draft must see extraction output.
		if ex.Output("extract")["sku"] != "sku-2" {
			return nil, services.Wrap(services.ErrValidation, "draft", "read accumulated data", "extract output missing", nil)
		}
		return results.Payload{"description": "shelf copy"}, nil
	}}

	var seen map[string]results.Payload
	sync := &stubHandler{name: "sync", execute: func(_ int, ex *stage.Exchange) (results.Payload, error) {
		seen = ex.Accumulated
		return results.Payload{"externalId": "ext-1"}, nil
	}}

	h := newHarness(t, workflow.StageSet{Extractor: extract, Drafter: draft, Syncer: sync}, nil)
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-2", "Oak Shelf")
	h.waitForStatus(t, item.ID, queue.StatusCompleted)

	if seen["extract"]["title"] != "Oak Shelf" || seen["draft"]["description"] != "shelf copy" {
		t.Fatalf("sync did not observe accumulated namespaces: %#v", seen)
	}
}

func TestTransientFailureIsRetriedUntilRecovery(t *testing.T) {
	extract := &stubHandler{name: "extract", execute: func(execs int, _ *stage.Exchange) (results.Payload, error) {
		if execs < 3 {
			return nil, services.Wrap(services.ErrTransient, "extract", "fetch document", "store not ready", nil)
		}
		return results.Payload{"sku": "sku-3"}, nil
	}}
	sync := &stubHandler{name: "sync"}

	h := newHarness(t, workflow.StageSet{Extractor: extract, Syncer: sync}, func(cfg *config.Config) {
		cfg.Workflow.StageAttemptLimit = 3
	})
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-3", "Pine Chair")
	done := h.waitForStatus(t, item.ID, queue.StatusCompleted)

	if extract.executions() != 3 {
		t.Fatalf("expected 3 extract executions, got %d", extract.executions())
	}
	if done.Attempt("extract") != 3 {
		t.Fatalf("expected attempt count 3, got %d", done.Attempt("extract"))
	}
}

func TestTransientFailureExhaustsAttemptBudget(t *testing.T) {
	extract := &stubHandler{name: "extract", execute: func(int, *stage.Exchange) (results.Payload, error) {
		return nil, services.Wrap(services.ErrTransient, "extract", "fetch document", "store not ready", nil)
	}}

	h := newHarness(t, workflow.StageSet{Extractor: extract, Syncer: &stubHandler{name: "sync"}}, func(cfg *config.Config) {
		cfg.Workflow.StageAttemptLimit = 2
	})
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-4", "Birch Stool")
	done := h.waitForStatus(t, item.ID, queue.StatusFailed)

	if extract.executions() != 2 {
		t.Fatalf("expected 2 executions before giving up, got %d", extract.executions())
	}
	if done.ErrorKind != string(services.KindTransient) {
		t.Fatalf("expected transient error kind recorded, got %q", done.ErrorKind)
	}
	if done.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}
}

func TestValidationFailureIsFatalImmediately(t *testing.T) {
	draft := &stubHandler{name: "draft", execute: func(int, *stage.Exchange) (results.Payload, error) {
		return nil, services.Wrap(services.ErrValidation, "draft", "compose copy", "extracted payload incomplete", nil)
	}}

	h := newHarness(t, workflow.StageSet{
		Extractor: &stubHandler{name: "extract"},
		Drafter:   draft,
		Syncer:    &stubHandler{name: "sync"},
	}, nil)
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-5", "Cedar Bench")
	done := h.waitForStatus(t, item.ID, queue.StatusFailed)

	if draft.executions() != 1 {
		t.Fatalf("validation errors must not retry, got %d executions", draft.executions())
	}
	if done.ErrorKind != string(services.KindValidation) {
		t.Fatalf("expected validation kind, got %q", done.ErrorKind)
	}
}

func TestOptionalImagesStageIsSkipped(t *testing.T) {
	images := &skippableHandler{stubHandler: stubHandler{name: "images"}, shouldRun: false}
	sync := &stubHandler{name: "sync"}

	h := newHarness(t, workflow.StageSet{
		Extractor: &stubHandler{name: "extract"},
		Imagery:   images,
		Syncer:    sync,
	}, nil)
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-6", "Ash Table")
	h.waitForStatus(t, item.ID, queue.StatusCompleted)

	if images.executions() != 0 {
		t.Fatalf("expected images stage skipped, got %d executions", images.executions())
	}
	if sync.executions() != 1 {
		t.Fatalf("expected sync to run after skip, got %d executions", sync.executions())
	}
}

func TestImagesDisabledByConfig(t *testing.T) {
	images := &skippableHandler{stubHandler: stubHandler{name: "images"}, shouldRun: true}

	h := newHarness(t, workflow.StageSet{
		Extractor: &stubHandler{name: "extract"},
		Imagery:   images,
		Syncer:    &stubHandler{name: "sync"},
	}, func(cfg *config.Config) {
		cfg.Stages.ImagesEnabled = false
	})
	h.run(t)

	item := testsupport.Submit(t, h.store, "sku-7", "Elm Cabinet")
	h.waitForStatus(t, item.ID, queue.StatusCompleted)

	if images.executions() != 0 {
		t.Fatalf("expected disabled images stage to never run, got %d executions", images.executions())
	}
}

func TestReclaimedEntityDiscardsStageOutput(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	extract := &stubHandler{name: "extract", execute: func(execs int, _ *stage.Exchange) (results.Payload, error) {
		if execs == 1 {
			close(started)
			<-release
		}
		return results.Payload{"sku": "sku-8"}, nil
	}}
	sync := &stubHandler{name: "sync"}

	h := newHarness(t, workflow.StageSet{Extractor: extract, Syncer: sync}, func(cfg *config.Config) {
		// Keep the heartbeat loop and sweep quiet so the takeover below is
		// the only actor touching the lock.
		cfg.Workflow.HeartbeatInterval = 3600
		cfg.Workflow.HeartbeatTimeout = 3600
		cfg.Locks.StaleAfterSeconds = 1
	})
	h.run(t)

	ctx := context.Background()
	item := testsupport.Submit(t, h.store, "sku-8", "Teak Sideboard")
	<-started

	// The extract holder stops refreshing; another processor reclaims the
	// entity while the stage is still executing.
	time.Sleep(1100 * time.Millisecond)
	rival, err := h.locks.Acquire(ctx, "sku-8", "rival-wf", "extract")
	if err != nil {
		t.Fatalf("rival takeover failed: %v", err)
	}
	close(release)

	// The stage finishes, notices the loss, and must throw its output away.
	time.Sleep(500 * time.Millisecond)

	got, err := h.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusExtracting {
		t.Fatalf("expected item left in extracting after discard, got %s", got.Status)
	}
	accumulated, err := h.results.Accumulated(ctx, item.ID)
	if err != nil {
		t.Fatalf("Accumulated: %v", err)
	}
	if len(accumulated) != 0 {
		t.Fatalf("expected no persisted output from the reclaimed execution, got %#v", accumulated)
	}
	if sync.executions() != 0 {
		t.Fatalf("expected no advance past extract, sync ran %d times", sync.executions())
	}

	// The rival's lock survives the first worker's deferred release.
	if err := rival.Refresh(ctx, "extract"); err != nil {
		t.Fatalf("rival lease should still be live: %v", err)
	}
	holder, err := h.locks.Holder(ctx, "sku-8")
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	if holder == nil || holder.WorkflowID != "rival-wf" {
		t.Fatalf("expected rival-wf to hold the entity, got %#v", holder)
	}
}

func TestStatusSummaryReportsStageHealth(t *testing.T) {
	h := newHarness(t, workflow.StageSet{
		Extractor: &stubHandler{name: "extract"},
		Syncer:    &stubHandler{name: "sync"},
	}, nil)

	summary := h.manager.Status(context.Background())
	if summary.Running {
		t.Fatal("manager not started, expected Running=false")
	}
	if len(summary.StageHealth) != 2 {
		t.Fatalf("expected 2 stage health entries, got %d", len(summary.StageHealth))
	}
	if !summary.StageHealth["extract"].Ready {
		t.Fatal("expected extract stage healthy")
	}
}
