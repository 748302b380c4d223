package sqliteengine

import (
	"github.com/jmoiron/sqlx"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

// config collects the settings shared by all SQLite recorders.
type config struct {
	eventsTableName   string
	trackingTableName string
	retryAttempts     int
	readerDB          *sqlx.DB
	logger            recorder.Logger
	contextualLogger  recorder.ContextualLogger
}

func defaultConfig() config {
	return config{
		eventsTableName:   defaultEventsTableName,
		trackingTableName: defaultTrackingTableName,
		retryAttempts:     defaultRetryAttempts,
	}
}

// Option defines a functional option for configuring a SQLite recorder.
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

// WithReaderDB serves the select paths from the given database handle instead
// of checking reader sessions out of the connection pool. With WAL journaling
// those reads proceed concurrently with the single writer.
func WithReaderDB(db *sqlx.DB) Option {
	return func(c *config) error {
		if db == nil {
			return recorder.ErrNilDatabaseConnection
		}

		c.readerDB = db

		return nil
	}
}

// WithLogger sets the logger for the recorder.
func WithLogger(logger recorder.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the recorder.
func WithContextualLogger(logger recorder.ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}
