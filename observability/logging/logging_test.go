package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"", slog.LevelInfo, true},
		{"info", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tc := range cases {
		level, err := ParseLevel(tc.name)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.name)
		}
		if tc.ok && level != tc.level {
			t.Fatalf("%q: got level %v, want %v", tc.name, level, tc.level)
		}
	}
}

func TestSetupRemapsKeysAndFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := setup(buf, "bondchaind", "bond-local", slog.LevelWarn)

	logger.Info("dropped below threshold")
	logger.Warn("kept", slog.String("module", "vault"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["severity"] != "WARN" {
		t.Fatalf("unexpected severity %v", entry["severity"])
	}
	if entry["message"] != "kept" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
	if entry["service"] != "bondchaind" || entry["network"] != "bond-local" {
		t.Fatalf("missing default attrs: %v", entry)
	}
	if entry["module"] != "vault" {
		t.Fatalf("missing attr: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
}
