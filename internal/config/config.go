package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Redis contains connection settings for the task queue broker.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Worker contains task execution settings for the daemon.
type Worker struct {
	Concurrency          int `toml:"concurrency"`
	StageTimeoutSeconds  int `toml:"stage_timeout_seconds"`
	UploadTimeoutSeconds int `toml:"upload_timeout_seconds"`
	MaxRetry             int `toml:"max_retry"`
	RetryDelaySeconds    int `toml:"retry_delay_seconds"`
}

// Workflow contains timing settings for stage reclaim and maintenance.
type Workflow struct {
	HeartbeatTimeoutSeconds int `toml:"heartbeat_timeout_seconds"`
	ExpireSweepMinutes      int `toml:"expire_sweep_minutes"`
}

// Scheduler contains settings for automation job scheduling.
type Scheduler struct {
	MinIntervalHours    int `toml:"min_interval_hours"`
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`
}

// Tools contains the external commands invoked for each pipeline stage.
// Commands receive the recording workspace path as their final argument.
type Tools struct {
	DownloadCommand   string `toml:"download_command"`
	TrimCommand       string `toml:"trim_command"`
	TranscribeCommand string `toml:"transcribe_command"`
	TopicsCommand     string `toml:"topics_command"`
	SubtitlesCommand  string `toml:"subtitles_command"`
	UploadCommand     string `toml:"upload_command"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Conveyor.
//
// Configuration sections by subsystem:
//   - Paths: database and log directories
//   - Redis: task queue broker connection
//   - Worker: concurrency, per-task timeouts, retry policy
//   - Workflow: heartbeat reclaim and expiry sweep intervals
//   - Scheduler: automation job frequency floor and sync cadence
//   - Tools: external stage commands
//   - Defaults: tenant-wide base processing profile (lowest merge precedence)
//   - Logging: log format and level
type Config struct {
	Paths     Paths          `toml:"paths"`
	Redis     Redis          `toml:"redis"`
	Worker    Worker         `toml:"worker"`
	Workflow  Workflow       `toml:"workflow"`
	Scheduler Scheduler      `toml:"scheduler"`
	Tools     Tools          `toml:"tools"`
	Defaults  map[string]any `toml:"defaults"`
	Logging   Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conveyor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conveyor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string { return c.Logging.Level }

// LogFormat returns the configured log format.
func (c *Config) LogFormat() string { return c.Logging.Format }

// LogDirectory returns the configured log directory.
func (c *Config) LogDirectory() string { return c.Paths.LogDir }

// StageTimeout returns the per-stage task deadline.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Worker.StageTimeoutSeconds) * time.Second
}

// UploadTimeout returns the per-upload task deadline.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Worker.UploadTimeoutSeconds) * time.Second
}

// RetryDelay returns the base delay between task retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Worker.RetryDelaySeconds) * time.Second
}

// HeartbeatTimeout returns how long a stage may run without a heartbeat
// before it is reclaimed for another worker.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
