package config

const (
	defaultDataDir  = "~/.local/share/loom"
	defaultLogDir   = "~/.local/share/loom/logs"
	defaultAPIBind  = "127.0.0.1:7512"
	defaultLogLevel = "info"
	defaultFormat   = "console"

	defaultStorageRetryAttempts = 5
	defaultStorageRetryBaseMS   = 200
	defaultStorageRetryMaxMS    = 2000

	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultStageAttemptLimit   = 3
	defaultStageRetryDelay     = 5
	defaultStageConcurrency    = 2
	defaultResultsTTLHours     = 24
	defaultCleanupGraceSeconds = 60
	defaultStuckThresholdMins  = 30

	defaultLockAcquireTimeout = 30
	defaultLockPollMillis     = 500
	defaultLockStaleAfter     = 120

	defaultConflictMaxAttempts = 3
	defaultConflictRetryBaseMS = 100

	defaultServiceTimeoutSeconds = 60
	defaultEnricherModel         = "google/gemini-3-flash-preview"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			RetryAttempts:   defaultStorageRetryAttempts,
			RetryBaseMillis: defaultStorageRetryBaseMS,
			RetryMaxMillis:  defaultStorageRetryMaxMS,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			StageAttemptLimit:   defaultStageAttemptLimit,
			StageRetryDelay:     defaultStageRetryDelay,
			StageConcurrency:    defaultStageConcurrency,
			ResultsTTLHours:     defaultResultsTTLHours,
			CleanupGraceSeconds: defaultCleanupGraceSeconds,
			StuckThresholdMins:  defaultStuckThresholdMins,
		},
		Locks: Locks{
			AcquireTimeoutSeconds: defaultLockAcquireTimeout,
			PollIntervalMillis:    defaultLockPollMillis,
			StaleAfterSeconds:     defaultLockStaleAfter,
		},
		Stages: Stages{
			ImagesEnabled: true,
		},
		Extractor: Extractor{
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Enricher: Enricher{
			Model:          defaultEnricherModel,
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Imagery: Imagery{
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Platform: Platform{
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Conflicts: Conflicts{
			MaxAttempts:     defaultConflictMaxAttempts,
			RetryBaseMillis: defaultConflictRetryBaseMS,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Submitted:      true,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultFormat,
			Level:  defaultLogLevel,
		},
	}
}
