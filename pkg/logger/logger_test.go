package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// captureDefault points the default logger at a buffer for the duration of
// the test.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestFromContextCarriesRequestID(t *testing.T) {
	buf := captureDefault(t)
	ctx := WithRequestID(context.Background(), "req-123")

	FromContext(ctx).Info("handling request")

	if out := buf.String(); !strings.Contains(out, "request_id=req-123") {
		t.Errorf("log line %q missing request_id", out)
	}
}

func TestFromContextWithoutRequestID(t *testing.T) {
	buf := captureDefault(t)

	FromContext(context.Background()).Info("background work")

	if out := buf.String(); strings.Contains(out, "request_id") {
		t.Errorf("log line %q has request_id without one in context", out)
	}
}

func TestWithComponentTagsLines(t *testing.T) {
	buf := captureDefault(t)

	WithComponent("fetch-queue").Warn("queue full")

	if out := buf.String(); !strings.Contains(out, "component=fetch-queue") {
		t.Errorf("log line %q missing component tag", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
