package eventstore

import (
	"errors"

	"github.com/google/uuid"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

var (
	// ErrNilPayload is returned when a domain event carries no payload.
	ErrNilPayload = errors.New("payload must not be nil")

	// ErrNilMapper is returned when an EventStore is built without a mapper.
	ErrNilMapper = errors.New("mapper must not be nil")
)

// DomainEvents is an alias type for a slice of DomainEvent.
type DomainEvents = []DomainEvent

// DomainEvent is the decoded view of a stored event: the originator
// coordinates plus a typed payload instead of raw state bytes.
//
// While its properties are exported, it should only be constructed with
// BuildDomainEvent so the validation rules hold.
type DomainEvent struct {
	OriginatorID      uuid.UUID
	OriginatorVersion int64
	Topic             string
	Payload           any
}

// BuildDomainEvent is a factory method for DomainEvent.
//
// It validates the originator coordinates the same way the recorder does, so
// invalid events are rejected before they reach a backend.
func BuildDomainEvent(originatorID uuid.UUID, originatorVersion int64, topic string, payload any) (DomainEvent, error) {
	if originatorID == uuid.Nil {
		return DomainEvent{}, errors.Join(recorder.ErrProgramming, recorder.ErrNilOriginatorID)
	}

	if originatorVersion < 1 {
		return DomainEvent{}, errors.Join(recorder.ErrProgramming, recorder.ErrInvalidOriginatorVersion)
	}

	if topic == "" {
		return DomainEvent{}, errors.Join(recorder.ErrProgramming, recorder.ErrEmptyTopic)
	}

	if payload == nil {
		return DomainEvent{}, errors.Join(recorder.ErrProgramming, ErrNilPayload)
	}

	return DomainEvent{
		OriginatorID:      originatorID,
		OriginatorVersion: originatorVersion,
		Topic:             topic,
		Payload:           payload,
	}, nil
}

// Mapper converts between the typed DomainEvent view and the scalar
// recorder.StoredEvent representation.
type Mapper interface {
	ToStored(event DomainEvent) (recorder.StoredEvent, error)
	FromStored(stored recorder.StoredEvent) (DomainEvent, error)
}
