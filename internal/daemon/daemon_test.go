package daemon

import (
	"testing"

	"conveyor/internal/logging"
	"conveyor/internal/testsupport"
)

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, logging.NewNop()); err == nil {
		t.Fatal("New accepted nil config and store")
	}
}

func TestNewWiresRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(2))
	store := testsupport.MustOpenStore(t, cfg)

	d, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Orchestrator() == nil {
		t.Fatal("orchestrator not wired")
	}
	if d.lockPath == "" {
		t.Fatal("lock path not set")
	}
	d.client.Close()
}
