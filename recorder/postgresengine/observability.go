package postgresengine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

const (
	metricOperationDuration = "eventrecorder_operation_duration_seconds"
	metricDatabaseErrors    = "eventrecorder_database_errors_total"
	metricEventsInserted    = "eventrecorder_events_inserted_total"

	spanNamePrefix    = "eventrecorder."
	spanAttrOperation = "operation"
	spanAttrTable     = "db.table"
	statusOK          = "ok"
	statusError       = "error"
)

// logQueryWithDuration logs SQL statements with execution time at debug level
// if a logger is configured.
func (c *config) logQueryWithDuration(ctx context.Context, sqlQuery string, operation string, duration time.Duration) {
	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+operation, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if c.logger != nil {
		c.logger.Debug(logMsgSQLExecuted+operation, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is
// configured.
func (c *config) logOperation(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, logMsgOperation+msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Info(logMsgOperation+msg, args...)
	}
}

// logError logs error information at error level if a logger is configured.
func (c *config) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if c.logger != nil {
		c.logger.Error(msg, allArgs...)
	}
}

// recordDuration records an operation duration if a metrics collector is
// configured, preferring the context-aware method when available.
func (c *config) recordDuration(ctx context.Context, operation, status string, duration time.Duration) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}

	if contextual, ok := c.metricsCollector.(recorder.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
}

// recordError counts a classified database error if a metrics collector is
// configured.
func (c *config) recordError(ctx context.Context, operation, errorType string) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          statusError,
		"error_type":      errorType,
	}

	if contextual, ok := c.metricsCollector.(recorder.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
}

// recordEventsInserted counts successfully inserted events if a metrics
// collector is configured.
func (c *config) recordEventsInserted(ctx context.Context, operation string, count int) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          statusOK,
	}

	if contextual, ok := c.metricsCollector.(recorder.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metricEventsInserted, float64(count), labels)
		return
	}

	c.metricsCollector.RecordValue(metricEventsInserted, float64(count), labels)
}

// startSpan opens a tracing span for an operation if a tracing collector is
// configured; the returned finish func is safe to call either way.
func (c *config) startSpan(ctx context.Context, operation string) (context.Context, func(status string)) {
	if c.tracingCollector == nil {
		return ctx, func(string) {}
	}

	spanCtx, span := c.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
		spanAttrOperation: operation,
		spanAttrTable:     c.eventsTableName,
	})

	return spanCtx, func(status string) {
		c.tracingCollector.FinishSpan(span, status, nil)
	}
}

// classifyError names the taxonomy bucket of an already-translated error for
// metric labels.
func classifyError(err error) string {
	switch {
	case errors.Is(err, recorder.ErrIntegrity):
		return "integrity"
	case errors.Is(err, recorder.ErrOperational):
		return "operational"
	case errors.Is(err, recorder.ErrProgramming):
		return "programming"
	case errors.Is(err, recorder.ErrConnectionUnavailable):
		return "connection_unavailable"
	case errors.Is(err, recorder.ErrConnectionPoolClosed):
		return "pool_closed"
	default:
		return "interface"
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
