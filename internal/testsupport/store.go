package testsupport

import (
	"context"
	"testing"

	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/queue"
	"launchlock/internal/storage"
)

// MustOpenDB opens the configured database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustOpenQueue opens a fresh database and wraps it in a queue.Store.
func MustOpenQueue(t testing.TB, cfg *config.Config, clk clock.Clock) (*queue.Store, *storage.DB) {
	t.Helper()

	db := MustOpenDB(t, cfg)
	return queue.NewStore(db, clk), db
}

// MustEnqueue enqueues a payload and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, payload queue.Payload, opts queue.EnqueueOptions) string {
	t.Helper()

	id, err := store.Enqueue(context.Background(), payload, opts)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return id
}
