package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(&LoggerConfig{Level: DEBUG, Format: "json", Output: &buf})

	logger.SetLevel(INFO)

	logger.Debug(context.Background(), "debug message")
	if buf.String() != "" {
		t.Error("DEBUG message should not appear when level is INFO")
	}

	buf.Reset()
	logger.Info(context.Background(), "info message")
	if buf.String() == "" {
		t.Error("INFO message should appear when level is INFO")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(&LoggerConfig{Level: DEBUG, Format: "json", Output: &buf})

	logger.Info(context.Background(), "hello", String("pool", "p1"), Int("taken", 2))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got error: %v, content: %s", err, buf.String())
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message 'hello', got %v", entry["message"])
	}
	if entry["pool"] != "p1" {
		t.Errorf("expected pool field 'p1', got %v", entry["pool"])
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(&LoggerConfig{Level: DEBUG, Format: "text", Output: &buf})

	logger.Error(context.Background(), "boom", errors.New("disk full"), String("pool", "p1"))

	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "boom") || !strings.Contains(out, "pool=") {
		t.Errorf("unexpected text log output: %q", out)
	}
}

func TestLogger_LogPoolLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(&LoggerConfig{Level: DEBUG, Format: "text", Output: &buf})

	logger.LogPool(context.Background(), PoolCriticalDrain, Int("version", 3))
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected critical drain to log at ERROR, got %q", buf.String())
	}

	buf.Reset()
	logger.LogPool(context.Background(), PoolBorrowTimeout)
	if !strings.Contains(buf.String(), "WARN") {
		t.Errorf("expected borrow timeout to log at WARN, got %q", buf.String())
	}

	buf.Reset()
	logger.LogPool(context.Background(), PoolCreated)
	if !strings.Contains(buf.String(), "DEBUG") {
		t.Errorf("expected created event to log at DEBUG, got %q", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(&LoggerConfig{Level: DEBUG, Format: "text", Output: &buf})

	scoped := logger.WithFields(String("pool", "p1"))
	scoped.Info(context.Background(), "borrowed")

	if !strings.Contains(buf.String(), "pool=") {
		t.Errorf("expected inherited field in output, got %q", buf.String())
	}
}

func TestLogSampler_Bounds(t *testing.T) {
	s := NewLogSampler(-1)
	if s.rate != 0 {
		t.Errorf("expected rate clamped to 0, got %v", s.rate)
	}
	s2 := NewLogSampler(2)
	if s2.rate != 1 {
		t.Errorf("expected rate clamped to 1, got %v", s2.rate)
	}
}

func TestNoOpLogger(t *testing.T) {
	l := NewNoOpLogger()
	l.Info(context.Background(), "anything")
	if l.IsEnabled(DEBUG) {
		t.Error("NoOpLogger should never be enabled")
	}
	if l.WithFields(String("a", "b")) != l {
		t.Error("NoOpLogger.WithFields should return itself")
	}
}
