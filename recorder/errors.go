package recorder

import (
	"errors"
)

// Error taxonomy shared by all recorder engines. Backend-native errors are
// translated into these at the engine boundary so callers stay backend
// independent; engines wrap the native cause with errors.Join, so errors.Is
// classifies while the full backend detail stays available for logging.
var (
	// ErrIntegrity signals a uniqueness violation: a duplicate
	// (originator id, originator version) pair or a duplicate tracking row.
	// It is never retried; the caller must re-fetch state and retry the whole
	// business operation.
	ErrIntegrity = errors.New("integrity error")

	// ErrInterface signals a connection-level failure such as a dead socket or
	// a failed connect. Engines retry it transparently a bounded number of
	// times before propagating it.
	ErrInterface = errors.New("interface error")

	// ErrOperational signals a transient backend condition, including a lock
	// timeout while serializing notification-id allocation. Read paths retry
	// it; write paths surface it after bounded retries.
	ErrOperational = errors.New("operational error")

	// ErrProgramming signals a malformed schema, statement or
	// misconfiguration. It is never retried and always fatal to the caller.
	ErrProgramming = errors.New("programming error")
)

// Pool protocol errors. None of these are retried automatically; the caller
// decides whether to back off.
var (
	// ErrConnectionUnavailable is returned when waiting for a pooled
	// connection, a writer slot, or the ordering lock times out.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrConnectionPoolClosed is returned on any use of a pool after Close.
	ErrConnectionPoolClosed = errors.New("connection pool is closed")

	// ErrConnectionNotFromPool is returned when a foreign connection is
	// handed back to a pool that did not create it.
	ErrConnectionNotFromPool = errors.New("connection did not come from this pool")
)

// Validation errors for record construction and engine configuration.
var (
	ErrNilOriginatorID          = errors.New("originator id must not be the nil UUID")
	ErrInvalidOriginatorVersion = errors.New("originator version must be at least 1")
	ErrEmptyTopic               = errors.New("topic must not be empty")
	ErrEmptyApplicationName     = errors.New("application name must not be empty")
	ErrInvalidNotificationID    = errors.New("notification id must be at least 1")
	ErrInvalidSectionID         = errors.New("invalid section id")
	ErrEmptyEventsTableName     = errors.New("empty events table name supplied")
	ErrEmptyTrackingTableName   = errors.New("empty tracking table name supplied")
	ErrNilDatabaseConnection    = errors.New("database connection must not be nil")
)
