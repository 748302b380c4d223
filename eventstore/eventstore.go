package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

// EventStore is a typed facade over an AggregateRecorder. It owns no
// concurrency or ordering logic: optimistic concurrency control and
// notification ordering stay with the recorder.
type EventStore struct {
	recorder recorder.AggregateRecorder
	mapper   Mapper
}

// New creates an EventStore on the given recorder and mapper. Any recorder
// flavor works, including ApplicationRecorder and ProcessRecorder.
func New(aggregateRecorder recorder.AggregateRecorder, mapper Mapper) (*EventStore, error) {
	if aggregateRecorder == nil {
		return nil, recorder.ErrNilDatabaseConnection
	}

	if mapper == nil {
		return nil, ErrNilMapper
	}

	return &EventStore{recorder: aggregateRecorder, mapper: mapper}, nil
}

// Recorder exposes the wrapped recorder for callers that need backend
// operations the facade does not cover, such as notification scans.
func (s *EventStore) Recorder() recorder.AggregateRecorder {
	return s.recorder
}

// Put encodes the domain events and appends them atomically. Insert options,
// such as recorder.WithTracking, pass through to the recorder.
func (s *EventStore) Put(ctx context.Context, events DomainEvents, options ...recorder.InsertOption) error {
	storedEvents := make(recorder.StoredEvents, 0, len(events))

	for _, event := range events {
		storedEvent, mapErr := s.mapper.ToStored(event)
		if mapErr != nil {
			return mapErr
		}

		storedEvents = append(storedEvents, storedEvent)
	}

	return s.recorder.InsertEvents(ctx, storedEvents, options...)
}

// Get scans one originator's events and decodes them. Select options, such as
// recorder.WithGt or recorder.WithDesc, pass through to the recorder.
func (s *EventStore) Get(ctx context.Context, originatorID uuid.UUID, options ...recorder.SelectOption) (DomainEvents, error) {
	storedEvents, selectErr := s.recorder.SelectEvents(ctx, originatorID, options...)
	if selectErr != nil {
		return nil, selectErr
	}

	events := make(DomainEvents, 0, len(storedEvents))

	for _, storedEvent := range storedEvents {
		event, mapErr := s.mapper.FromStored(storedEvent)
		if mapErr != nil {
			return nil, mapErr
		}

		events = append(events, event)
	}

	return events, nil
}

// GetLatest decodes the newest event of one originator via a reverse scan
// with limit 1. The boolean reports whether the originator has any events.
func (s *EventStore) GetLatest(ctx context.Context, originatorID uuid.UUID) (DomainEvent, bool, error) {
	events, getErr := s.Get(ctx, originatorID, recorder.WithDesc(), recorder.WithLimit(1))
	if getErr != nil {
		return DomainEvent{}, false, getErr
	}

	if len(events) == 0 {
		return DomainEvent{}, false, nil
	}

	return events[0], true, nil
}
