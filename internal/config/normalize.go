package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeWorkflow()
	c.normalizeLocks()
	c.normalizeServices()
	c.normalizeConflicts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeStorage() {
	if c.Storage.RetryAttempts <= 0 {
		c.Storage.RetryAttempts = defaultStorageRetryAttempts
	}
	if c.Storage.RetryBaseMillis <= 0 {
		c.Storage.RetryBaseMillis = defaultStorageRetryBaseMS
	}
	if c.Storage.RetryMaxMillis < c.Storage.RetryBaseMillis {
		c.Storage.RetryMaxMillis = defaultStorageRetryMaxMS
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval < 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.StageAttemptLimit <= 0 {
		c.Workflow.StageAttemptLimit = defaultStageAttemptLimit
	}
	if c.Workflow.StageRetryDelay < 0 {
		c.Workflow.StageRetryDelay = defaultStageRetryDelay
	}
	if c.Workflow.StageConcurrency <= 0 {
		c.Workflow.StageConcurrency = defaultStageConcurrency
	}
	if c.Workflow.ResultsTTLHours <= 0 {
		c.Workflow.ResultsTTLHours = defaultResultsTTLHours
	}
	if c.Workflow.CleanupGraceSeconds < 0 {
		c.Workflow.CleanupGraceSeconds = defaultCleanupGraceSeconds
	}
	if c.Workflow.StuckThresholdMins <= 0 {
		c.Workflow.StuckThresholdMins = defaultStuckThresholdMins
	}
}

func (c *Config) normalizeLocks() {
	if c.Locks.AcquireTimeoutSeconds <= 0 {
		c.Locks.AcquireTimeoutSeconds = defaultLockAcquireTimeout
	}
	if c.Locks.PollIntervalMillis <= 0 {
		c.Locks.PollIntervalMillis = defaultLockPollMillis
	}
	if c.Locks.StaleAfterSeconds <= 0 {
		c.Locks.StaleAfterSeconds = defaultLockStaleAfter
	}
}

func (c *Config) normalizeServices() {
	if c.Extractor.APIKey == "" {
		if value, ok := os.LookupEnv("LOOM_EXTRACTOR_API_KEY"); ok {
			c.Extractor.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Enricher.APIKey == "" {
		if value, ok := os.LookupEnv("LOOM_ENRICHER_API_KEY"); ok {
			c.Enricher.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Platform.APIKey == "" {
		if value, ok := os.LookupEnv("LOOM_PLATFORM_API_KEY"); ok {
			c.Platform.APIKey = strings.TrimSpace(value)
		}
	}
	c.Extractor.URL = strings.TrimRight(strings.TrimSpace(c.Extractor.URL), "/")
	c.Enricher.URL = strings.TrimRight(strings.TrimSpace(c.Enricher.URL), "/")
	c.Imagery.URL = strings.TrimRight(strings.TrimSpace(c.Imagery.URL), "/")
	c.Platform.URL = strings.TrimRight(strings.TrimSpace(c.Platform.URL), "/")
	c.Platform.Shop = strings.TrimSpace(c.Platform.Shop)
	for _, timeout := range []*int{
		&c.Extractor.TimeoutSeconds,
		&c.Enricher.TimeoutSeconds,
		&c.Imagery.TimeoutSeconds,
		&c.Platform.TimeoutSeconds,
	} {
		if *timeout <= 0 {
			*timeout = defaultServiceTimeoutSeconds
		}
	}
}

func (c *Config) normalizeConflicts() {
	if c.Conflicts.MaxAttempts <= 0 {
		c.Conflicts.MaxAttempts = defaultConflictMaxAttempts
	}
	if c.Conflicts.RetryBaseMillis <= 0 {
		c.Conflicts.RetryBaseMillis = defaultConflictRetryBaseMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
