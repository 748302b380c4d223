// Package pool provides a generic, backend-agnostic connection pool for the
// recorder engines.
//
// A Pool bounds the number of concurrently open backend sessions and hands
// them out fairly: a weighted semaphore gates total checkouts and serves
// waiters in roughly arrival order. Connections carry an optional maximum age
// after which they are recycled instead of reused, and can be liveness-checked
// with a cheap ping before being handed out again.
//
// For single-writer embedded engines the pool supports a writer-exclusivity
// mode: at most one writer connection is checked out at a time, and readers
// can additionally be made mutually exclusive with the writer.
//
// All blocking acquisition honors the caller's context; on expiry the pool
// returns recorder.ErrConnectionUnavailable rather than hanging.
package pool
