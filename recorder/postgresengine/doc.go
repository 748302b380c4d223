// Package postgresengine provides PostgreSQL-backed implementations of the
// recorder interfaces.
//
// Writes check a single pgx session out of the connection pool and run inside
// one transaction. The ApplicationRecorder serializes concurrent committers
// with a short exclusive table lock (LOCK TABLE ... IN EXCLUSIVE MODE) while
// notification ids are allocated from the table's sequence, so transaction
// commit order always matches notification-id order; lock acquisition is
// bounded by a configurable lock timeout that surfaces as a retryable
// operational error.
//
// Reads go through a pooled session by default, or through a separately
// configured reader handle (a pgxpool.Pool replica, a sql.DB opened with
// lib/pq, or a sqlx.DB) so query load can be moved off the primary.
//
// All SQL is built with goqu in prepared form; backend errors are translated
// into the recorder error taxonomy at this boundary.
package postgresengine
