package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONIncludesServiceAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "analyze", "warn", "json")
	logger.Info("hidden")
	logger.Warn("pair_failed", "case", "c1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if record["service"] != "analyze" || record["msg"] != "pair_failed" || record["case"] != "c1" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "analyze", "debug", "text").Debug("run_start", "pairs", 4)
	if !strings.Contains(buf.String(), "msg=run_start") || !strings.Contains(buf.String(), "pairs=4") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}
