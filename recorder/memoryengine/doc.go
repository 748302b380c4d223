// Package memoryengine provides in-process reference implementations of the
// recorder interfaces, guarded by mutexes instead of a database.
//
// The engine honors the same contracts as the durable engines: all-or-nothing
// batches, ErrIntegrity on duplicate (originator id, originator version) pairs
// and duplicate tracking rows, and strictly increasing notification ids. The
// recorder mutex itself is the ordering-preserving serialization window, so
// notification order always matches insertion order.
//
// Intended for tests and for wiring application code before a durable backend
// is configured.
package memoryengine
