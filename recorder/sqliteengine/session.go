package sqliteengine

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver import

	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
)

// Open opens a SQLite database for the recorder engines and applies the
// write-ahead-log journal mode, which allows readers to proceed while the
// single writer holds the database.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Session wraps one sqlx connection behind the pool.Session interface.
type Session struct {
	conn *sqlx.Conn
}

// Conn exposes the wrapped sqlx connection for the duration of a checkout.
func (s *Session) Conn() *sqlx.Conn {
	return s.conn
}

// Ping runs a cheap liveness check against the database.
func (s *Session) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close returns the underlying connection to the sqlx handle.
func (s *Session) Close() error {
	return s.conn.Close()
}

// NewSessionFactory returns a pool.Factory checking dedicated connections out
// of the given database handle. Each session gets a busy timeout so lock
// contention surfaces as a bounded operational error instead of blocking
// forever.
func NewSessionFactory(db *sqlx.DB, busyTimeout time.Duration) pool.Factory {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	return func(ctx context.Context) (pool.Session, error) {
		conn, err := db.Connx(ctx)
		if err != nil {
			return nil, err
		}

		statement := fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			_ = conn.Close()
			return nil, err
		}

		return &Session{conn: conn}, nil
	}
}
