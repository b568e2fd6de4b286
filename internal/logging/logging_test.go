package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("loud", &bytes.Buffer{})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	if New("debug", &bytes.Buffer{}).GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level to be honoured")
	}
}

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)

	LogError(logger, "service", "Dashboard", "load expenses", map[string]string{"tenant": "school-1"}, errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "boom" || entry["module"] != "service" || entry["funcName"] != "Dashboard" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if _, ok := entry["data"]; !ok {
		t.Fatalf("expected data field in %v", entry)
	}
}

func TestLogErrorIgnoresNilError(t *testing.T) {
	var buf bytes.Buffer
	LogError(New("info", &buf), "service", "Dashboard", "noop", nil, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
