package conflicts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

// Record is a catalog entity on its way to the commerce platform. ExternalID
// is empty until the platform has accepted a create. CurrentKey carries the
// key already persisted on an owned record, so update collisions can fall
// back to it.
type Record struct {
	ExternalID string
	NaturalKey string
	CurrentKey string
	Title      string
	Fields     map[string]any
}

// RecordStore persists catalog records. Implementations surface natural-key
// collisions as services.ErrConflict.
type RecordStore interface {
	Create(ctx context.Context, record *Record) (string, error)
	Update(ctx context.Context, record *Record) error
}

// Persister writes records through a RecordStore, resolving natural-key
// collisions with bounded retries. An update never loses its record's
// current key; a create never persists an empty one.
type Persister struct {
	store       RecordStore
	maxAttempts int
	backoffBase time.Duration
}

// NewPersister builds a persister from configuration.
func NewPersister(store RecordStore, cfg *config.Config) *Persister {
	return &Persister{
		store:       store,
		maxAttempts: cfg.Conflicts.MaxAttempts,
		backoffBase: time.Duration(cfg.Conflicts.RetryBaseMillis) * time.Millisecond,
	}
}

// Persist creates or updates the record, retrying key collisions. The
// returned record carries the key and external id that were actually
// persisted. Exhausted retries yield services.ErrPersistentConflict.
func (p *Persister) Persist(ctx context.Context, workflowID string, record *Record) (*Record, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	attempts := p.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	isUpdate := record.ExternalID != ""
	if record.NaturalKey == "" {
		record.NaturalKey = Resolve(record.CurrentKey, "", workflowID, isUpdate)
	}

	delay := p.backoffBase
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		if isUpdate {
			lastErr = p.store.Update(ctx, record)
		} else {
			var externalID string
			externalID, lastErr = p.store.Create(ctx, record)
			if lastErr == nil {
				record.ExternalID = externalID
			}
		}
		if lastErr == nil {
			record.CurrentKey = record.NaturalKey
			return record, nil
		}
		if !errors.Is(lastErr, services.ErrConflict) {
			return nil, lastErr
		}

		record.NaturalKey = Resolve(record.CurrentKey, record.NaturalKey, workflowID, isUpdate)
	}

	return nil, services.Wrap(
		services.ErrPersistentConflict,
		"sync",
		"persist record",
		fmt.Sprintf("natural key still colliding after %d attempts", attempts),
		lastErr,
	)
}
