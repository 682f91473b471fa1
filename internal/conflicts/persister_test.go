package conflicts_test

import (
	"context"
	"errors"
	"testing"

	"loom/internal/conflicts"
	"loom/internal/services"
	"loom/internal/testsupport"
)

type fakeRecordStore struct {
	takenKeys map[string]bool
	creates   int
	updates   int
	lastKey   string
}

func newFakeRecordStore(taken ...string) *fakeRecordStore {
	keys := make(map[string]bool, len(taken))
	for _, key := range taken {
		keys[key] = true
	}
	return &fakeRecordStore{takenKeys: keys}
}

func (f *fakeRecordStore) Create(_ context.Context, record *conflicts.Record) (string, error) {
	f.creates++
	f.lastKey = record.NaturalKey
	if f.takenKeys[record.NaturalKey] {
		return "", services.Wrap(services.ErrConflict, "sync", "create record", "key already in use", nil)
	}
	f.takenKeys[record.NaturalKey] = true
	return "ext-1", nil
}

func (f *fakeRecordStore) Update(_ context.Context, record *conflicts.Record) error {
	f.updates++
	f.lastKey = record.NaturalKey
	if f.takenKeys[record.NaturalKey] && record.NaturalKey != record.CurrentKey {
		return services.Wrap(services.ErrConflict, "sync", "update record", "key owned elsewhere", nil)
	}
	return nil
}

func newPersister(t *testing.T, store conflicts.RecordStore) *conflicts.Persister {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Conflicts.RetryBaseMillis = 1
	return conflicts.NewPersister(store, cfg)
}

func TestPersistCreateWithoutCollision(t *testing.T) {
	store := newFakeRecordStore()
	persister := newPersister(t, store)

	record, err := persister.Persist(context.Background(), "wf-1", &conflicts.Record{NaturalKey: "walnut-desk"})
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if record.ExternalID != "ext-1" {
		t.Fatalf("expected external id assigned, got %q", record.ExternalID)
	}
	if store.creates != 1 {
		t.Fatalf("expected 1 create, got %d", store.creates)
	}
}

func TestPersistCreateDisambiguatesOnCollision(t *testing.T) {
	store := newFakeRecordStore("walnut-desk")
	persister := newPersister(t, store)

	record, err := persister.Persist(context.Background(), "a81bc81b-dead-4e5d-abff-90865d1e13b1", &conflicts.Record{NaturalKey: "walnut-desk"})
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if record.NaturalKey == "walnut-desk" || record.NaturalKey == "" {
		t.Fatalf("expected a disambiguated key, got %q", record.NaturalKey)
	}
	if store.creates != 2 {
		t.Fatalf("expected collision then retry, got %d creates", store.creates)
	}
}

func TestPersistUpdatePreservesOwnedKey(t *testing.T) {
	store := newFakeRecordStore("oak-desk")
	persister := newPersister(t, store)

	record, err := persister.Persist(context.Background(), "wf-1", &conflicts.Record{
		ExternalID: "ext-7",
		NaturalKey: "oak-desk",
		CurrentKey: "walnut-desk",
	})
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if record.NaturalKey != "walnut-desk" {
		t.Fatalf("expected owned key preserved, got %q", record.NaturalKey)
	}
	if store.updates != 2 {
		t.Fatalf("expected collision then retry, got %d updates", store.updates)
	}
}

func TestPersistExhaustionYieldsPersistentConflict(t *testing.T) {
	// Every key collides, including disambiguated ones.
	store := &alwaysConflictStore{}
	persister := newPersister(t, store)

	_, err := persister.Persist(context.Background(), "wf-1", &conflicts.Record{NaturalKey: "walnut-desk"})
	if err == nil {
		t.Fatal("expected persistent conflict")
	}
	if !errors.Is(err, services.ErrPersistentConflict) {
		t.Fatalf("expected ErrPersistentConflict, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("persistent conflict must not be retryable")
	}
	if store.keys[len(store.keys)-1] == "" {
		t.Fatal("a collision retry must never persist an empty key")
	}
}

func TestPersistPassesThroughOtherErrors(t *testing.T) {
	store := &alwaysConflictStore{err: services.Wrap(services.ErrTransient, "sync", "create record", "platform down", nil)}
	persister := newPersister(t, store)

	_, err := persister.Persist(context.Background(), "wf-1", &conflicts.Record{NaturalKey: "walnut-desk"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error passthrough, got %v", err)
	}
}

type alwaysConflictStore struct {
	keys []string
	err  error
}

func (s *alwaysConflictStore) Create(_ context.Context, record *conflicts.Record) (string, error) {
	s.keys = append(s.keys, record.NaturalKey)
	if s.err != nil {
		return "", s.err
	}
	return "", services.Wrap(services.ErrConflict, "sync", "create record", "key already in use", nil)
}

func (s *alwaysConflictStore) Update(_ context.Context, record *conflicts.Record) error {
	s.keys = append(s.keys, record.NaturalKey)
	if s.err != nil {
		return s.err
	}
	return services.Wrap(services.ErrConflict, "sync", "update record", "key already in use", nil)
}
