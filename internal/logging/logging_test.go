package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neurogut/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "neurogut.log")
	logger, closer, err := NewLoggerWithFile("info", config.LoggingConfig{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.Info("recording analyzed", "device_id", "dev-1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"device_id":"dev-1"`) {
		t.Fatalf("missing structured field: %s", data)
	}
}
