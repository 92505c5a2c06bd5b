package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "locks", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "kept" || entry["locks"].(float64) != 3 {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriterTextAndBadLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud", "TEXT")

	logger.Debug("hidden")
	logger.Info("ve_order_sum computed", "locks", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at default level: %q", out)
	}
	if !strings.Contains(out, `msg="ve_order_sum computed" locks=2`) {
		t.Fatalf("expected text handler output, got %q", out)
	}
}
