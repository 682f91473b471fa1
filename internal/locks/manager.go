package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/services"
	"loom/internal/storage"
)

// ErrNotHeld reports that a refresh or release found the lease gone,
// superseded, or owned by someone else. A worker seeing this must not
// persist further progress for the workflow: another acquisition owns the
// entity now.
var ErrNotHeld = errors.New("entity lock not held")

// Lock describes the current holder of an entity lock.
type Lock struct {
	EntityID    string
	WorkflowID  string
	Stage       string
	AcquiredAt  time.Time
	RefreshedAt time.Time

	token string
}

// Lease represents one successful acquisition of an entity lock. Every
// refresh and release presents the lease's token, so a lease that has been
// superseded or reclaimed cannot disturb the current holder.
type Lease struct {
	manager    *Manager
	entityID   string
	workflowID string
	token      string
}

// Manager grants exclusive per-entity locks backed by the shared database.
// Acquisition polls within a bounded window and may take over locks whose
// holder stopped refreshing.
type Manager struct {
	provider     storage.Provider
	acquireWait  time.Duration
	pollInterval time.Duration
	staleAfter   time.Duration
}

// NewManager builds a lock manager from configuration.
func NewManager(provider storage.Provider, cfg *config.Config) *Manager {
	return &Manager{
		provider:     provider,
		acquireWait:  time.Duration(cfg.Locks.AcquireTimeoutSeconds) * time.Second,
		pollInterval: time.Duration(cfg.Locks.PollIntervalMillis) * time.Millisecond,
		staleAfter:   time.Duration(cfg.Locks.StaleAfterSeconds) * time.Second,
	}
}

func (m *Manager) client() *storage.Client {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider()
}

// Acquire obtains the entity lock for the workflow, waiting up to the
// configured window, and returns the lease for it. A lock whose refresh
// timestamp has gone stale is reclaimed from its previous holder. A later
// acquisition by the same workflow supersedes any earlier lease it holds on
// the entity: the old lease answers ErrNotHeld from then on and its release
// is a no-op.
func (m *Manager) Acquire(ctx context.Context, entityID, workflowID, stage string) (*Lease, error) {
	deadline := time.Now().Add(m.acquireWait)
	for {
		token, err := m.tryAcquire(ctx, entityID, workflowID, stage)
		if err != nil {
			return nil, err
		}
		if token != "" {
			return &Lease{manager: m, entityID: entityID, workflowID: workflowID, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, services.Wrap(
				services.ErrLockTimeout,
				stage,
				"acquire lock",
				fmt.Sprintf("entity %s still locked after %s", entityID, m.acquireWait),
				nil,
			)
		}
		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) tryAcquire(ctx context.Context, entityID, workflowID, stage string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	token := uuid.NewString()

	res, err := m.client().Exec(
		ctx,
		`INSERT INTO entity_locks (entity_id, workflow_id, token, stage, acquired_at, refreshed_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(entity_id) DO NOTHING`,
		entityID, workflowID, token, stage, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert lock: %w", err)
	}
	if inserted, err := res.RowsAffected(); err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	} else if inserted > 0 {
		return token, nil
	}

	holder, err := m.Holder(ctx, entityID)
	if err != nil {
		return "", err
	}
	if holder == nil {
		// Released between the insert and the lookup; retry immediately.
		return "", nil
	}

	if holder.WorkflowID == workflowID {
		// The same workflow moved on to a later stage; rotate the token so
		// the previous stage's lease is invalidated instead of waited on.
		res, err := m.client().Exec(
			ctx,
			`UPDATE entity_locks SET token = ?, stage = ?, refreshed_at = ?
             WHERE entity_id = ? AND workflow_id = ? AND token = ?`,
			token, stage, now,
			entityID, workflowID, holder.token,
		)
		if err != nil {
			return "", fmt.Errorf("supersede lock: %w", err)
		}
		taken, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("rows affected: %w", err)
		}
		if taken > 0 {
			return token, nil
		}
		return "", nil
	}

	if m.staleAfter > 0 && time.Since(holder.RefreshedAt) > m.staleAfter {
		// Takeover fails silently if the holder refreshed concurrently; the
		// conditional update keeps exactly one winner.
		res, err := m.client().Exec(
			ctx,
			`UPDATE entity_locks
             SET workflow_id = ?, token = ?, stage = ?, acquired_at = ?, refreshed_at = ?
             WHERE entity_id = ? AND workflow_id = ? AND refreshed_at = ?`,
			workflowID, token, stage, now, now,
			entityID, holder.WorkflowID, holder.RefreshedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return "", fmt.Errorf("reclaim stale lock: %w", err)
		}
		taken, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("rows affected: %w", err)
		}
		if taken > 0 {
			return token, nil
		}
		return "", nil
	}

	return "", nil
}

// Refresh advances the lease's refresh timestamp, proving the holder is
// alive. ErrNotHeld means the lease was superseded, reclaimed, or released;
// the caller must stop persisting progress for this workflow.
func (l *Lease) Refresh(ctx context.Context, stage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.manager.client().Exec(
		ctx,
		`UPDATE entity_locks SET stage = ?, refreshed_at = ?
         WHERE entity_id = ? AND workflow_id = ? AND token = ?`,
		stage, now, l.entityID, l.workflowID, l.token,
	)
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release drops the lock if this lease still owns it. Releasing a lease that
// was superseded, reclaimed, or already released is not an error and leaves
// the current holder untouched.
func (l *Lease) Release(ctx context.Context) error {
	_, err := l.manager.client().Exec(
		ctx,
		`DELETE FROM entity_locks WHERE entity_id = ? AND workflow_id = ? AND token = ?`,
		l.entityID, l.workflowID, l.token,
	)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Holder returns the current lock holder for the entity, or nil when the
// entity is unlocked.
func (m *Manager) Holder(ctx context.Context, entityID string) (*Lock, error) {
	var (
		workflowID  string
		token       string
		stage       string
		acquiredRaw string
		refreshRaw  string
	)
	err := m.client().QueryRowScan(
		ctx,
		`SELECT workflow_id, token, stage, acquired_at, refreshed_at FROM entity_locks WHERE entity_id = ?`,
		[]any{entityID},
		&workflowID, &token, &stage, &acquiredRaw, &refreshRaw,
	)
	if err != nil {
		if storage.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup lock holder: %w", err)
	}

	lock := &Lock{EntityID: entityID, WorkflowID: workflowID, Stage: stage, token: token}
	if acquired, err := time.Parse(time.RFC3339Nano, acquiredRaw); err == nil {
		lock.AcquiredAt = acquired
	}
	if refreshed, err := time.Parse(time.RFC3339Nano, refreshRaw); err == nil {
		lock.RefreshedAt = refreshed
	}
	return lock, nil
}
