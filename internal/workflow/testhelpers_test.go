package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/locks"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/stage"
	"loom/internal/storage"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	results *results.Store
	locks   *locks.Manager
	manager *workflow.Manager
}

func newHarness(t *testing.T, set workflow.StageSet, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.StageRetryDelay = 0
	cfg.Workflow.CleanupGraceSeconds = 0
	cfg.Locks.AcquireTimeoutSeconds = 2
	cfg.Locks.PollIntervalMillis = 10
	if mutate != nil {
		mutate(cfg)
	}

	client := testsupport.MustOpenClient(t, cfg)
	provider := func() *storage.Client { return client }

	h := &harness{
		cfg:     cfg,
		store:   queue.NewStore(provider),
		results: results.NewStore(provider, time.Hour),
		locks:   locks.NewManager(provider, cfg),
	}
	h.manager = workflow.NewManagerWithNotifier(cfg, h.store, h.results, h.locks, logging.NewNop(), nil)
	h.manager.ConfigureStages(set)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) waitForStatus(t *testing.T, id string, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		item, err := h.store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if item != nil && item.Status == want {
			return item
		}
		time.Sleep(20 * time.Millisecond)
	}
	item, _ := h.store.GetByID(context.Background(), id)
	t.Fatalf("item never reached %s, last state %#v", want, item)
	return nil
}

// stubHandler is a configurable stage.Handler that records execution order.
type stubHandler struct {
	name    string
	mu      sync.Mutex
	execs   int
	execute func(execs int, exchange *stage.Exchange) (results.Payload, error)
	trace   *executionTrace
}

func (s *stubHandler) Prepare(context.Context, *queue.Item) error { return nil }

func (s *stubHandler) Execute(_ context.Context, exchange *stage.Exchange) (results.Payload, error) {
	s.mu.Lock()
	s.execs++
	execs := s.execs
	s.mu.Unlock()
	if s.trace != nil {
		s.trace.record(s.name)
	}
	if s.execute != nil {
		return s.execute(execs, exchange)
	}
	return results.Payload{s.name: "done"}, nil
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func (s *stubHandler) executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// skippableHandler wraps a stubHandler with a ShouldRun decision.
type skippableHandler struct {
	stubHandler
	shouldRun bool
}

func (s *skippableHandler) ShouldRun(context.Context, *queue.Item) (bool, error) {
	return s.shouldRun, nil
}

type executionTrace struct {
	mu     sync.Mutex
	stages []string
}

func (e *executionTrace) record(name string) {
	e.mu.Lock()
	e.stages = append(e.stages, name)
	e.mu.Unlock()
}

func (e *executionTrace) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.stages))
	copy(out, e.stages)
	return out
}
