package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, found, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("reported a file that does not exist")
	}
	if cfg.Worker.Concurrency != defaultWorkerConcurrency {
		t.Fatalf("concurrency = %d, want default", cfg.Worker.Concurrency)
	}
	if cfg.Redis.Addr != defaultRedisAddr {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[worker]
concurrency = 2
stage_timeout_seconds = 60

[redis]
addr = "redis.internal:6380"
db = 2

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, found, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found || resolved != path {
		t.Fatalf("found=%v path=%q", found, resolved)
	}
	if cfg.Worker.Concurrency != 2 {
		t.Fatalf("concurrency = %d", cfg.Worker.Concurrency)
	}
	if cfg.StageTimeout() != time.Minute {
		t.Fatalf("stage timeout = %s", cfg.StageTimeout())
	}
	if cfg.Redis.Addr != "redis.internal:6380" || cfg.Redis.DB != 2 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.LogFormat() != "json" || cfg.LogLevel() != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	// Unset sections keep their defaults.
	if cfg.Worker.UploadTimeoutSeconds != defaultUploadTimeoutSeconds {
		t.Fatalf("upload timeout = %d", cfg.Worker.UploadTimeoutSeconds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero concurrency", "[worker]\nconcurrency = 0\n", "worker.concurrency"},
		{"negative redis db", "[redis]\ndb = -1\n", "redis.db"},
		{"bad log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"bad log level", "[logging]\nlevel = \"verbose\"\n", "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	if cfg.StageTimeout() != 30*time.Minute {
		t.Fatalf("stage timeout = %s", cfg.StageTimeout())
	}
	if cfg.UploadTimeout() != time.Hour {
		t.Fatalf("upload timeout = %s", cfg.UploadTimeout())
	}
	if cfg.HeartbeatTimeout() != 5*time.Minute {
		t.Fatalf("heartbeat timeout = %s", cfg.HeartbeatTimeout())
	}
	if cfg.RetryDelay() != time.Minute {
		t.Fatalf("retry delay = %s", cfg.RetryDelay())
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandPath("~/media")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "media") {
		t.Fatalf("expanded = %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, found, err := Load(path); err != nil || !found {
		t.Fatalf("sample config does not load: found=%v err=%v", found, err)
	}
}
