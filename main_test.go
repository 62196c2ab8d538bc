package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/config"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	applyOverrides(cfg, "", "")
	if cfg.SamplingInterval() != time.Second || cfg.SamplingRetention() != 5*time.Minute {
		t.Errorf("empty overrides changed config: %+v", cfg.Sampling)
	}

	applyOverrides(cfg, "250ms", "10m")
	if got := cfg.SamplingInterval(); got != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", got)
	}
	if got := cfg.SamplingRetention(); got != 10*time.Minute {
		t.Errorf("retention = %v, want 10m", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Daemon.LogFile = filepath.Join(t.TempDir(), "nested", "loadgraph.log")
	cfg.Daemon.LogLevel = "warn"

	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "series", "cpu")
	closeLog()

	data, err := os.ReadFile(cfg.Daemon.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "hidden") {
		t.Errorf("info line logged at warn level: %s", got)
	}
	if !strings.Contains(got, "msg=shown series=cpu") {
		t.Errorf("expected warn line, got: %s", got)
	}
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Daemon.LogFile = filepath.Join(t.TempDir(), "loadgraph.log")

	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeLog()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should enable debug")
	}
}
