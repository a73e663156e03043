package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartSpanInheritsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")

	ctx, outer := StartSpan(ctx, "outer")
	if TraceIDFromContext(ctx) != "req-1" {
		t.Fatalf("expected request id as trace id, got %q", TraceIDFromContext(ctx))
	}
	outerID := SpanIDFromContext(ctx)

	inner, span := StartSpan(ctx, "inner")
	if TraceIDFromContext(inner) != "req-1" {
		t.Fatal("child span must keep the trace id")
	}
	if SpanIDFromContext(inner) == outerID {
		t.Fatal("child span must get its own id")
	}
	span.Fail(errors.New("boom"))
	span.End()
	outer.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two entries, got %d: %s", len(lines), buf.String())
	}
	var failed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failed["level"] != "WARN" || failed["error"] != "boom" || failed["parent_span_id"] != outerID {
		t.Fatalf("unexpected failed span entry %v", failed)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty request id")
	}
}
