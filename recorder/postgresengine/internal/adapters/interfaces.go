package adapters

import "context"

// DBReader defines the interface for the query operations needed by the
// recorder read paths.
type DBReader interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
