package recorder

import (
	"context"
	"time"
)

// Logger is the plain logging hook for the recorder engines. Engines emit SQL
// statements with timings at debug level, batch sizes and durations at info
// level, cleanup problems at warn level, and failed operations at error level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector receives the engines' operational measurements: operation
// durations, inserted event counts, and classified database error counts.
// Implement it against any metrics backend; the engines only push values.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector adds context-aware variants of the
// MetricsCollector methods. When a collector implements it, the engines call
// the context variants so the backend can correlate measurements with the
// active trace; otherwise they fall back to the base methods.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext is a live tracing span handed back by a TracingCollector. The
// engines set a status and attributes on it before finishing the span.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector opens and closes spans around insert and select
// operations. It carries no tracing dependency of its own, so it can wrap
// OpenTelemetry, Jaeger, Zipkin, or anything else that models spans.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// ContextualLogger is the context-aware counterpart of Logger. Engines prefer
// it over Logger when both are configured, passing the operation context so
// the backend can attach trace and span ids to each record.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
