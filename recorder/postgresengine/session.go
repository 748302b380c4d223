package postgresengine

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
)

// Session wraps one pgx connection behind the pool.Session interface. Writer
// transactions and pooled reads both run on the wrapped connection.
type Session struct {
	conn *pgx.Conn
}

// Conn exposes the wrapped pgx connection for the duration of a checkout.
func (s *Session) Conn() *pgx.Conn {
	return s.conn
}

// Ping runs a cheap liveness check against the backend.
func (s *Session) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the backend connection.
func (s *Session) Close() error {
	return s.conn.Close(context.Background())
}

// NewSessionFactory returns a pool.Factory dialing new pgx connections from a
// connection string (DSN or URL form).
func NewSessionFactory(connString string) pool.Factory {
	return func(ctx context.Context) (pool.Session, error) {
		conn, err := pgx.Connect(ctx, connString)
		if err != nil {
			return nil, err
		}

		return &Session{conn: conn}, nil
	}
}

// NewSessionFactoryFromConfig returns a pool.Factory dialing new pgx
// connections from a prepared pgx.ConnConfig.
func NewSessionFactoryFromConfig(config *pgx.ConnConfig) pool.Factory {
	return func(ctx context.Context) (pool.Session, error) {
		conn, err := pgx.ConnectConfig(ctx, config)
		if err != nil {
			return nil, err
		}

		return &Session{conn: conn}, nil
	}
}
