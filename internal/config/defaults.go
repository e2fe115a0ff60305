package config

const (
	defaultDataDir              = "~/.local/share/conveyor"
	defaultLogDir               = "~/.local/share/conveyor/logs"
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultWorkerConcurrency    = 8
	defaultStageTimeoutSeconds  = 1800
	defaultUploadTimeoutSeconds = 3600
	defaultMaxRetry             = 3
	defaultRetryDelaySeconds    = 60
	defaultHeartbeatTimeout     = 300
	defaultExpireSweepMinutes   = 15
	defaultMinIntervalHours     = 1
	defaultSyncIntervalSeconds  = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Redis: Redis{
			Addr: defaultRedisAddr,
		},
		Worker: Worker{
			Concurrency:          defaultWorkerConcurrency,
			StageTimeoutSeconds:  defaultStageTimeoutSeconds,
			UploadTimeoutSeconds: defaultUploadTimeoutSeconds,
			MaxRetry:             defaultMaxRetry,
			RetryDelaySeconds:    defaultRetryDelaySeconds,
		},
		Workflow: Workflow{
			HeartbeatTimeoutSeconds: defaultHeartbeatTimeout,
			ExpireSweepMinutes:      defaultExpireSweepMinutes,
		},
		Scheduler: Scheduler{
			MinIntervalHours:    defaultMinIntervalHours,
			SyncIntervalSeconds: defaultSyncIntervalSeconds,
		},
		Defaults: map[string]any{
			"processing": map[string]any{
				"trim":          map[string]any{"enabled": true},
				"transcription": map[string]any{"enabled": true, "language": "auto"},
				"topics":        map[string]any{"enabled": false},
				"subtitles":     map[string]any{"enabled": false},
				"allow_errors":  false,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
