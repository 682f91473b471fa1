package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/services"
)

func TestConsoleOutputCarriesComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("workflow advanced",
		logging.String(logging.FieldComponent, "orchestrator"),
		logging.String(logging.FieldStage, "extract"),
	)

	out := buf.String()
	if !strings.Contains(out, "workflow advanced") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "orchestrator:") {
		t.Fatalf("expected component prefix in output, got %q", out)
	}
	if !strings.Contains(out, "stage=extract") {
		t.Fatalf("expected stage attr in output, got %q", out)
	}
}

func TestLevelFiltersDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("expected info record suppressed at warn level, got %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("expected warn record emitted, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := services.WithWorkflowID(context.Background(), "wf-42")
	ctx = services.WithStage(ctx, "sync")
	logging.WithContext(ctx, logger).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "workflow_id=wf-42") || !strings.Contains(out, "stage=sync") {
		t.Fatalf("expected context fields in output, got %q", out)
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = dir
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	logger.Info("daemon ready")

	data, err := os.ReadFile(filepath.Join(dir, "loom.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "daemon ready") {
		t.Fatalf("expected record in log file, got %q", string(data))
	}
}
