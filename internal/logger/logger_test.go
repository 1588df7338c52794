package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithRequestID_And_RequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	requestID := "req-12345"

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithRequestID(ctx, requestID)
	if got := RequestIDFromContext(ctx); got != requestID {
		t.Errorf("RequestIDFromContext() = %v, want %v", got, requestID)
	}
}

func TestFromContext_AttachesIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, "info")

	ctx := WithJobID(WithRequestID(context.Background(), "req-67890"), "job-1")
	FromContext(ctx, base).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-67890" {
		t.Errorf("expected request_id attribute, got %v", entry["request_id"])
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("expected job_id attribute, got %v", entry["job_id"])
	}
}

func TestFromContext_WithoutIDsReturnsBase(t *testing.T) {
	base := New("info")
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without IDs should return the base logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
