package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Redis.Addr = "127.0.0.1:6379"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithConcurrency overrides the worker concurrency on the test config.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Concurrency = n
	}
}

// WithDefaults replaces the system default settings on the test config.
func WithDefaults(defaults map[string]any) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Defaults = defaults
	}
}

// WithStubbedTools writes a stub executable that exits with the given code
// and points every tool command at it.
func WithStubbedTools(exitCode int) ConfigOption {
	return func(b *configBuilder) {
		target := StubScript(b.t, b.baseDir, "conveyor-stub", exitCode)
		b.cfg.Tools = config.Tools{
			DownloadCommand:   target,
			TrimCommand:       target,
			TranscribeCommand: target,
			TopicsCommand:     target,
			SubtitlesCommand:  target,
			UploadCommand:     target,
		}
	}
}

// StubScript writes an executable shell script under dir that ignores its
// arguments and exits with the given code. Returns the absolute path.
func StubScript(t testing.TB, dir, name string, exitCode int) string {
	t.Helper()

	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	script := fmt.Sprintf("#!/bin/sh\nexit %d\n", exitCode)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
