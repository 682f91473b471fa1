package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"loom/internal/config"
	"loom/internal/drafting"
	"loom/internal/enrichment"
	"loom/internal/extraction"
	"loom/internal/imaging"
	"loom/internal/locks"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/storage"
	"loom/internal/syncing"
	"loom/internal/workflow"
)

// Daemon wires the storage, queue, and workflow manager together and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *storage.Client
	store    *queue.Store
	results  *results.Store
	workflow *workflow.Manager
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with all pipeline stages wired from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	client, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	provider := func() *storage.Client { return client }

	store := queue.NewStore(provider)
	resultStore := results.NewStore(provider, time.Duration(cfg.Workflow.ResultsTTLHours)*time.Hour)
	lockManager := locks.NewManager(provider, cfg)
	notifier := notifications.NewService(cfg)

	manager := workflow.NewManagerWithNotifier(cfg, store, resultStore, lockManager, logger, notifier)
	manager.ConfigureStages(workflow.StageSet{
		Extractor: extraction.NewExtractor(cfg, logger),
		Drafter:   drafting.NewDrafter(cfg, logger),
		Enricher:  enrichment.NewEnricher(cfg, logger),
		Imagery:   imaging.NewImager(cfg, logger),
		Syncer:    syncing.NewSyncer(cfg, logger),
	})

	lockPath := filepath.Join(cfg.Paths.DataDir, "loomd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		client:   client,
		store:    store,
		results:  resultStore,
		workflow: manager,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return d, nil
}

// Start acquires the instance lock, recovers stale work, and launches the
// workflow manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return errors.New("another loom daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Items abandoned by a previous crashed instance go back to their stage
	// start before workers begin polling.
	if _, err := d.workflow.ReclaimStale(d.ctx); err != nil {
		d.logger.Warn("startup reclaim failed", logging.Error(err))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.wg.Add(1)
	go d.runSweeper(d.ctx)

	d.running.Store(true)
	d.logger.Info("loom daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.client.Path()),
	)
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("loom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// runSweeper periodically expires accumulated results and reclaims items
// whose workers stopped heartbeating.
func (d *Daemon) runSweeper(ctx context.Context) {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Workflow.HeartbeatTimeout) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := d.results.SweepExpired(ctx); err != nil {
				d.logger.Warn("results sweep failed", logging.Error(err))
			} else if removed > 0 {
				d.logger.Info("expired stage results removed", logging.Int("count", int(removed)))
			}
			reclaimed, err := d.workflow.ReclaimStale(ctx)
			if err != nil {
				d.logger.Warn("stale reclaim failed", logging.Error(err))
			} else if reclaimed > 0 {
				_ = d.notifier.Publish(ctx, notifications.EventStaleReclaimed, notifications.Payload{
					"count": strconv.FormatInt(reclaimed, 10),
				})
			}
		}
	}
}

// Store exposes the queue store for CLI wiring.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// APIAddr returns the bound API address, empty when the server is disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.client.Path(),
		LockFilePath: d.lockPath,
	}
}
