// Package recorder provides the backend-agnostic core of the event-sourcing
// persistence layer: record types, the recorder interface hierarchy, the common
// error taxonomy, and the observability interfaces shared by all engines.
//
// The recorder hierarchy mirrors the write paths of an event-sourced system:
//   - AggregateRecorder: per-entity append-only event log with optimistic
//     concurrency control via the (originator id, originator version) primary key
//   - ApplicationRecorder: adds a single, globally ordered notification log
//     shared across all entities
//   - ProcessRecorder: adds an idempotent per-consumer tracking log written in
//     the same transaction as the events it accompanies
//
// Engines implementing these interfaces live in the sibling packages
// memoryengine, postgresengine and sqliteengine. All engines translate their
// backend-native failures into the sentinel errors defined here, so callers can
// classify failures with errors.Is without knowing which backend they run on.
//
// Common usage pattern:
//
//	events, err := rec.SelectEvents(ctx, originatorID)
//	if err != nil {
//		// handle error
//	}
//
//	err = rec.InsertEvents(ctx, batch)
//	if errors.Is(err, recorder.ErrIntegrity) {
//		// concurrent writer won; re-fetch state and retry the business operation
//	}
package recorder
