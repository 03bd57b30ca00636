package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"voxhub/pkg/config"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter: %v", err)
	}

	log.With("component", "test.logger").Info("Driver started", "driver", "telegram", "count", 2)

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want info", entry.Level)
	}
	if entry.Component != "test.logger" {
		t.Fatalf("component = %q, want test.logger", entry.Component)
	}
	if entry.Message != "Driver started" {
		t.Fatalf("message = %q", entry.Message)
	}
	if entry.Fields["driver"] != "telegram" {
		t.Fatalf("fields = %+v", entry.Fields)
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter: %v", err)
	}

	log.Info("dropped")
	log.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "kept") {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter: %v", err)
	}

	log.Debug("Queue polling started", "interval", "1s")
	if !strings.Contains(buf.String(), "Queue polling started") {
		t.Fatalf("missing message: %q", buf.String())
	}
}

func TestInvalidFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected an error for unsupported format")
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected an error for unsupported level")
	}
}

func TestEnvOverridesFormat(t *testing.T) {
	t.Setenv("VOXHUB_LOG_FORMAT", "json")

	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter: %v", err)
	}

	log.Info("hello")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}
