// Package requestctx carries per-request values, the scoped logger and the
// trace identity, through context without the callers importing each other.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

type traceKey struct{}

var nopLogger = zap.NewNop()

// TraceInfo is the trace identity attached to a request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// WithLogger attaches a request-scoped logger. A nil logger attaches the
// shared no-op instead, so Logger never hands back nil.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = nopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger, or a no-op logger when the
// context carries none. Never nil.
func Logger(ctx context.Context) *zap.Logger {
	logger, _ := LoggerFrom(ctx)
	return logger
}

// LoggerFrom returns the request-scoped logger and whether one was attached.
// When none was, the no-op logger is returned so the result is still usable.
func LoggerFrom(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nopLogger, false
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger, logger != nopLogger
	}
	return nopLogger, false
}

// WithTrace attaches the trace identity to the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the trace identity and whether one was attached.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the attached trace id, or "" when the request carries none.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
