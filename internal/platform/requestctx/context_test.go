package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFromDistinguishesAttachedLogger(t *testing.T) {
	if logger, ok := LoggerFrom(context.Background()); ok || logger == nil {
		t.Fatalf("bare context: got ok=%v logger=%v", ok, logger)
	}

	attached := zap.NewExample()
	ctx := WithLogger(context.Background(), attached)
	logger, ok := LoggerFrom(ctx)
	if !ok || logger != attached {
		t.Fatalf("expected attached logger back, got ok=%v", ok)
	}

	// A nil logger degrades to the shared no-op, which reads as not attached.
	ctx = WithLogger(context.Background(), nil)
	if logger, ok := LoggerFrom(ctx); ok || logger == nil {
		t.Fatalf("nil attach: got ok=%v logger=%v", ok, logger)
	}
	if Logger(ctx) == nil {
		t.Fatal("Logger must never return nil")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	if _, ok := Trace(context.Background()); ok {
		t.Fatal("bare context must carry no trace")
	}
	if id := TraceID(context.Background()); id != "" {
		t.Fatalf("expected empty trace id, got %q", id)
	}

	info := TraceInfo{TraceID: "trace-1", SpanID: "span-1", Sampled: true}
	ctx := WithTrace(context.Background(), info)
	got, ok := Trace(ctx)
	if !ok || got != info {
		t.Fatalf("unexpected trace %+v ok=%v", got, ok)
	}
	if TraceID(ctx) != "trace-1" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
}
