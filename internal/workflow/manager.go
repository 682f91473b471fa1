package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loom/internal/config"
	"loom/internal/locks"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/results"
)

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	results  *results.Store
	locks    *locks.Manager
	logger   *slog.Logger
	notifier notifications.Service

	pollInterval time.Duration
	concurrency  int
	heartbeat    *HeartbeatMonitor

	stages             []pipelineStage
	stageByStart       map[queue.Status]pipelineStage
	reclaimTransitions map[queue.Status]queue.Status

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, resultStore *results.Store, lockManager *locks.Manager, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, resultStore, lockManager, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, resultStore *results.Store, lockManager *locks.Manager, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		results:      resultStore,
		locks:        lockManager,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		concurrency:  cfg.Workflow.StageConcurrency,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}
