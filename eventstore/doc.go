// Package eventstore provides a typed facade over the recorder interfaces.
//
// An EventStore turns domain events into recorder.StoredEvent rows and back,
// delegating all persistence and concurrency behavior to the recorder it
// wraps. The codec boundary is split in two:
//   - Transcoder: encodes and decodes payload bytes (JSONTranscoder by default)
//   - Registry: maps a topic to a prototype constructor for decoding
//
// Common usage pattern:
//
//	registry := eventstore.NewRegistry()
//	registry.Register("order_placed", func() any { return &OrderPlaced{} })
//
//	store, err := eventstore.New(applicationRecorder, eventstore.NewJSONMapper(registry))
//	if err != nil {
//		// handle error
//	}
//
//	err = store.Put(ctx, []eventstore.DomainEvent{placed})
//	events, err := store.Get(ctx, orderID)
//	latest, found, err := store.GetLatest(ctx, orderID)
package eventstore
