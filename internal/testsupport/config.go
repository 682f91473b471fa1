package testsupport

import (
	"path/filepath"
	"testing"

	"loom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Platform.URL = "http://127.0.0.1:0"
	cfg.Platform.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithImagesDisabled turns the optional imagery stage off.
func WithImagesDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Stages.ImagesEnabled = false
	}
}

// WithLockStaleAfter overrides the stale lock threshold, in seconds.
func WithLockStaleAfter(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Locks.StaleAfterSeconds = seconds
	}
}
