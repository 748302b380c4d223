package postgresengine

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/postgresengine/internal/adapters"
)

// config collects the settings shared by all Postgres recorders.
type config struct {
	eventsTableName   string
	trackingTableName string
	lockTimeout       time.Duration
	idleTxTimeout     time.Duration
	retryAttempts     int
	reader            adapters.DBReader
	logger            recorder.Logger
	contextualLogger  recorder.ContextualLogger
	metricsCollector  recorder.MetricsCollector
	tracingCollector  recorder.TracingCollector
}

func defaultConfig() config {
	return config{
		eventsTableName:   defaultEventsTableName,
		trackingTableName: defaultTrackingTableName,
		lockTimeout:       defaultLockTimeout,
		retryAttempts:     defaultRetryAttempts,
	}
}

// Option defines a functional option for configuring a Postgres recorder.
type Option func(*config) error

// WithTableName sets the stored-events table name.
func WithTableName(tableName string) Option {
	return func(c *config) error {
		if tableName == "" {
			return recorder.ErrEmptyEventsTableName
		}

		c.eventsTableName = tableName

		return nil
	}
}

// WithTrackingTableName sets the tracking table name used by ProcessRecorder.
func WithTrackingTableName(tableName string) Option {
	return func(c *config) error {
		if tableName == "" {
			return recorder.ErrEmptyTrackingTableName
		}

		c.trackingTableName = tableName

		return nil
	}
}

// WithLockTimeout bounds how long the notification-ordering lock acquisition
// may block before the backend gives up; expiry surfaces as a retryable
// recorder.ErrOperational. Zero disables the bound.
func WithLockTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.lockTimeout = timeout
		return nil
	}
}

// WithIdleInTransactionTimeout makes the backend terminate sessions that sit
// idle inside a transaction longer than the given duration, so an abandoned
// writer cannot hold the serialization window open. Zero disables the bound.
func WithIdleInTransactionTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.idleTxTimeout = timeout
		return nil
	}
}

// WithRetryAttempts sets how often transient connection failures are retried
// before they propagate.
func WithRetryAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return recorder.ErrInvalidMaxAttempts
		}

		c.retryAttempts = attempts

		return nil
	}
}

// WithReaderPool serves the select paths from the given pgx pool, typically a
// read replica, instead of checking reader sessions out of the connection
// pool. Writes are not affected.
func WithReaderPool(replica *pgxpool.Pool) Option {
	return func(c *config) error {
		if replica == nil {
			return recorder.ErrNilDatabaseConnection
		}

		c.reader = adapters.NewPGXPoolAdapter(replica)

		return nil
	}
}

// WithReaderSQLDB serves the select paths from the given sql.DB, e.g. one
// opened with the lib/pq driver.
func WithReaderSQLDB(db *sql.DB) Option {
	return func(c *config) error {
		if db == nil {
			return recorder.ErrNilDatabaseConnection
		}

		c.reader = adapters.NewSQLAdapter(db)

		return nil
	}
}

// WithReaderSQLX serves the select paths from the given sqlx.DB.
func WithReaderSQLX(db *sqlx.DB) Option {
	return func(c *config) error {
		if db == nil {
			return recorder.ErrNilDatabaseConnection
		}

		c.reader = adapters.NewSQLXAdapter(db)

		return nil
	}
}

// WithLogger sets the logger for the recorder.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: batch sizes, durations, conflicts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger recorder.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the recorder. The
// contextual logger receives log messages with context information including
// automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger recorder.ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the recorder. The collector
// receives operation durations, batch sizes, conflict counts, and database
// error counts.
func WithMetrics(collector recorder.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the recorder. The collector
// receives span creation for insert/select operations, context propagation,
// and error tracking.
func WithTracing(collector recorder.TracingCollector) Option {
	return func(c *config) error {
		c.tracingCollector = collector
		return nil
	}
}
