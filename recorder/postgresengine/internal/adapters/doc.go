// Package adapters provides database abstraction adapters for the Postgres
// recorder read paths.
//
// Writes always run inside a transaction on a pooled session; reads may be
// served by a primary or replica handle of any supported type (pgxpool.Pool,
// pgx.Conn, sql.DB, sqlx.DB) behind the DBReader interface.
package adapters
