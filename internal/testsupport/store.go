package testsupport

import (
	"context"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecording creates a recording for tests using the provided store.
func NewRecording(t testing.TB, store *queue.Store, tenantID, name string) *queue.Recording {
	t.Helper()

	rec, err := store.NewRecording(context.Background(), tenantID, name, "src-test", "https://source.example/"+name)
	if err != nil {
		t.Fatalf("store.NewRecording: %v", err)
	}
	return rec
}

// PendingRecording creates a recording that is still waiting on its source
// media, so it starts in the pending-source status.
func PendingRecording(t testing.TB, store *queue.Store, tenantID, name string) *queue.Recording {
	t.Helper()

	rec, err := store.NewRecording(context.Background(), tenantID, name, "src-test", "")
	if err != nil {
		t.Fatalf("store.NewRecording: %v", err)
	}
	return rec
}
