package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/queue"
	"loom/internal/storage"
)

// MustOpenClient opens the shared storage client for tests and registers
// cleanup.
func MustOpenClient(t testing.TB, cfg *config.Config) *storage.Client {
	t.Helper()

	client, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

// MustOpenStore opens a queue.Store backed by a fresh storage client.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	client := MustOpenClient(t, cfg)
	return queue.NewStore(func() *storage.Client { return client })
}

// Submit creates a workflow item for tests using the provided store.
func Submit(t testing.TB, store *queue.Store, entityID, title string) *queue.Item {
	t.Helper()

	item, err := store.Submit(context.Background(), entityID, title, "", "")
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return item
}
