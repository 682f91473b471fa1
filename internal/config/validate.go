package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLocks(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.StageAttemptLimit < 1 {
		return errors.New("workflow.stage_attempt_limit must be at least 1")
	}
	return nil
}

func (c *Config) validateLocks() error {
	if c.Locks.StaleAfterSeconds <= c.Workflow.HeartbeatInterval {
		return fmt.Errorf(
			"locks.stale_after_seconds (%d) must exceed workflow.heartbeat_interval (%d) or live locks will be reclaimed",
			c.Locks.StaleAfterSeconds, c.Workflow.HeartbeatInterval,
		)
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Platform.URL != "" && c.Platform.APIKey == "" {
		return errors.New("platform.api_key must be set when platform.url is configured. Set LOOM_PLATFORM_API_KEY or edit the config file")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
