package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXPoolAdapter implements DBReader for a pgxpool.Pool, typically a read
// replica serving select paths without occupying a writer session.
type PGXPoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPGXPoolAdapter creates a new adapter around a pgx pool.
func NewPGXPoolAdapter(pool *pgxpool.Pool) *PGXPoolAdapter {
	return &PGXPoolAdapter{pool: pool}
}

// Query executes a query on the pool and returns wrapped rows.
func (p *PGXPoolAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

// PGXConnAdapter implements DBReader for a single pgx.Conn, as checked out
// from the connection pool.
type PGXConnAdapter struct {
	conn *pgx.Conn
}

// NewPGXConnAdapter creates a new adapter around a single pgx connection.
func NewPGXConnAdapter(conn *pgx.Conn) *PGXConnAdapter {
	return &PGXConnAdapter{conn: conn}
}

// Query executes a query on the connection and returns wrapped rows.
func (p *PGXConnAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := p.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

// pgxRows wraps pgx.Rows to implement the DBRows interface.
type pgxRows struct {
	rows pgx.Rows
}

// Next advances to the next row.
func (p *pgxRows) Next() bool {
	return p.rows.Next()
}

// Scan copies row values into provided destinations.
func (p *pgxRows) Scan(dest ...any) error {
	return p.rows.Scan(dest...)
}

// Err reports any error encountered while iterating.
func (p *pgxRows) Err() error {
	return p.rows.Err()
}

// Close closes the rows iterator.
func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}
