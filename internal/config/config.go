package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage contains retry policy settings for the shared persistence client.
type Storage struct {
	RetryAttempts   int `toml:"retry_attempts"`
	RetryBaseMillis int `toml:"retry_base_millis"`
	RetryMaxMillis  int `toml:"retry_max_millis"`
}

// Workflow contains daemon timing, retry, and cleanup configuration.
type Workflow struct {
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	StageAttemptLimit   int `toml:"stage_attempt_limit"`
	StageRetryDelay     int `toml:"stage_retry_delay"`
	StageConcurrency    int `toml:"stage_concurrency"`
	ResultsTTLHours     int `toml:"results_ttl_hours"`
	CleanupGraceSeconds int `toml:"cleanup_grace_seconds"`
	StuckThresholdMins  int `toml:"stuck_threshold_minutes"`
}

// Locks contains entity lock acquisition and staleness settings.
type Locks struct {
	AcquireTimeoutSeconds int `toml:"acquire_timeout_seconds"`
	PollIntervalMillis    int `toml:"poll_interval_millis"`
	StaleAfterSeconds     int `toml:"stale_after_seconds"`
}

// Stages toggles optional pipeline stages.
type Stages struct {
	ImagesEnabled bool `toml:"images_enabled"`
}

// Extractor contains configuration for the document extraction service.
type Extractor struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Enricher contains configuration for the AI enrichment service.
type Enricher struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Imagery contains configuration for the image sourcing service.
type Imagery struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Platform contains configuration for the commerce platform sync service.
type Platform struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	Shop           string `toml:"shop"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Conflicts contains natural-key conflict resolution settings.
type Conflicts struct {
	MaxAttempts     int `toml:"max_attempts"`
	RetryBaseMillis int `toml:"retry_base_millis"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Submitted      bool   `toml:"submitted"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Loom.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Storage: shared persistence client retry policy
//   - Workflow: polling intervals, heartbeats, stage retry budgets
//   - Locks: entity lock wait and staleness thresholds
//   - Stages: optional stage toggles
//   - Extractor/Enricher/Imagery/Platform: collaborator service endpoints
//   - Conflicts: natural-key conflict retry budget
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Workflow      Workflow      `toml:"workflow"`
	Locks         Locks         `toml:"locks"`
	Stages        Stages        `toml:"stages"`
	Extractor     Extractor     `toml:"extractor"`
	Enricher      Enricher      `toml:"enricher"`
	Imagery       Imagery       `toml:"imagery"`
	Platform      Platform      `toml:"platform"`
	Conflicts     Conflicts     `toml:"conflicts"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath("~/.config/loom/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("loom.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the shared SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "loom.db")
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
