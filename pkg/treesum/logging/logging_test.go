package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/treesum/pkg/treesum/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"", logging.LevelInfo, false},
		{"loud", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// No t.Parallel() in this file: Init and Close mutate package state.

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treesum.log")
	if err := logging.Init(logging.Config{Level: "debug", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("engine").Info("build finished", "entries", 3)

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "build finished") {
		t.Errorf("log file missing message, got %q", data)
	}
	if !strings.Contains(string(data), "engine") {
		t.Errorf("log file missing component prefix, got %q", data)
	}
}

func TestComponentLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treesum.log")
	cfg := logging.Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{"walker": "error"},
	}
	if err := logging.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("walker").Warn("suppressed warning")
	logging.Get("engine").Warn("visible warning")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(data), "suppressed warning") {
		t.Error("walker warning should be filtered by component level")
	}
	if !strings.Contains(string(data), "visible warning") {
		t.Error("engine warning should be written")
	}
}

func TestTUIModeBuffersEntries(t *testing.T) {
	cfg := logging.Config{Level: "info", Path: filepath.Join(t.TempDir(), "tui.log"), TUIMode: true}
	if err := logging.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer func() { _ = logging.Close() }()

	logger := logging.Get("tui")
	logger.Info("first")
	logger.Info("second")

	entries := logging.RecentEntries(1)
	if len(entries) != 1 {
		t.Fatalf("RecentEntries(1) len = %d, want 1", len(entries))
	}
	if entries[0].Message != "second" {
		t.Errorf("latest entry = %q, want %q", entries[0].Message, "second")
	}
}

func TestGetBeforeInitIsSilent(t *testing.T) {
	_ = logging.Close()
	logger := logging.Get("early")
	logger.Error("nobody sees this")

	if got := logging.RecentEntries(10); got != nil {
		t.Errorf("RecentEntries outside TUI mode = %v, want nil", got)
	}
}

func TestLoggerObtainedBeforeInitWrites(t *testing.T) {
	_ = logging.Close()
	logger := logging.Get("report")

	path := filepath.Join(t.TempDir(), "late.log")
	if err := logging.Init(logging.Config{Level: "info", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	logger.Info("report written")
	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "report written") {
		t.Errorf("early logger did not write after Init, got %q", data)
	}
}
