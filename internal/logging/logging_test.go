package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rickgao/barsync/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_Stdout(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("merge failed", "key", "EUR_USD.M1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if rec["msg"] != "merge failed" || rec["key"] != "EUR_USD.M1" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_File(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "barsync.log")

	logger, closer, err := newLogger(config.LoggingConfig{
		Output:    "both",
		File:      path,
		MaxSizeMB: 1,
	}, &stdout)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("sync complete", "inserted", 10)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "sync complete") {
		t.Errorf("log file = %q, missing record", data)
	}
	if !strings.Contains(stdout.String(), "inserted=10") {
		t.Errorf("stdout = %q, missing record", stdout.String())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Output: "file"}); err == nil {
		t.Error("file output without a path should fail")
	}
	if _, _, err := New(config.LoggingConfig{Output: "syslog"}); err == nil {
		t.Error("unknown output should fail")
	}
}
