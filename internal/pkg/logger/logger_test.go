package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "avatar-api",
	}), &buf
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Info("job submitted", "voice", "en-US-JennyMultilingualNeural")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "job submitted" {
		t.Errorf("expected msg='job submitted', got %v", entry["msg"])
	}
	if entry["voice"] != "en-US-JennyMultilingualNeural" {
		t.Errorf("expected voice attribute, got %v", entry["voice"])
	}
	if entry["service"] != "avatar-api" {
		t.Errorf("expected service='avatar-api', got %v", entry["service"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "TEXT", Output: &buf})

	log.Info("polling")

	if !strings.Contains(buf.String(), "msg=polling") {
		t.Errorf("expected text handler output, got: %s", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info level logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"info level does not log debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"error level does not log warn", "error", func(l *Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)

			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got hasOutput=%v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.WithJobID("3f2b").WithComponent("runner").WithError(context.Canceled).Info("poll stopped")

	out := buf.String()
	for _, want := range []string{`"job_id":"3f2b"`, `"component":"runner"`, "context canceled"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %s, got: %s", want, out)
		}
	}

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")

	log.FromContext(ctx).Info("test message")

	out := buf.String()
	if !strings.Contains(out, "req-abc") {
		t.Errorf("expected output to contain request_id, got: %s", out)
	}
	if !strings.Contains(out, "job-xyz") {
		t.Errorf("expected output to contain job_id, got: %s", out)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	if log == nil {
		t.Fatal("expected logger")
	}
	log.Error("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}
