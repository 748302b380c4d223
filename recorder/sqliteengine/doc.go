// Package sqliteengine provides SQLite-backed implementations of the
// recorder interfaces on top of the modernc.org/sqlite driver via sqlx.
//
// SQLite has a single writer per database, so the ordering-preserving
// protocol is the engine's own write serialization: writes run inside
// BEGIN IMMEDIATE transactions on a pooled session, and the connection pool
// should be configured with the mutually-exclusive read/write mode so a
// writer never contends with pooled readers. Notification ids are the table
// rowids, which the single writer assigns in commit order.
//
// With journal_mode=WAL, reads can be served concurrently from a separate
// read handle configured with WithReaderDB.
package sqliteengine
