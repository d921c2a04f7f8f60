package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Errorf("New accepted unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Errorf("New accepted unknown format")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("user banned", "target", "u1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "user banned" || rec["target"] != "u1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if _, err := Setup(Options{Level: "info", Output: &buf}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	slog.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("default logger output = %q", buf.String())
	}
}
