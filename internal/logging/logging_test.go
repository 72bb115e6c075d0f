package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "debug", "goldex-api", "development"), "sweeper")
	logger.Debug("swept", "expired", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["service"] != "goldex-api" || rec["component"] != "sweeper" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != slog.LevelWarn {
		t.Fatalf("expected warn")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatalf("expected info default")
	}
}
