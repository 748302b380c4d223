package eventstore

import (
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

var (
	// ErrUnregisteredTopic is returned when decoding meets a topic that has no
	// registered prototype constructor.
	ErrUnregisteredTopic = errors.New("no prototype registered for topic")

	// ErrInvalidPayloadJSON is returned when encoded payload bytes are not
	// valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")
)

// Transcoder encodes typed payloads to state bytes and back. Decode fills the
// given target, which comes from the topic registry.
type Transcoder interface {
	Encode(payload any) ([]byte, error)
	Decode(state []byte, target any) error
}

// JSONTranscoder implements Transcoder with jsoniter, configured to be
// compatible with encoding/json.
type JSONTranscoder struct {
	api jsoniter.API
}

// NewJSONTranscoder creates a JSONTranscoder.
func NewJSONTranscoder() *JSONTranscoder {
	return &JSONTranscoder{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

func (t *JSONTranscoder) Encode(payload any) ([]byte, error) {
	state, err := t.api.Marshal(payload)
	if err != nil {
		return nil, errors.Join(recorder.ErrProgramming, err)
	}

	return state, nil
}

func (t *JSONTranscoder) Decode(state []byte, target any) error {
	if !t.api.Valid(state) {
		return errors.Join(recorder.ErrProgramming, ErrInvalidPayloadJSON)
	}

	if err := t.api.Unmarshal(state, target); err != nil {
		return errors.Join(recorder.ErrProgramming, err)
	}

	return nil
}

var _ Transcoder = (*JSONTranscoder)(nil)

// Registry maps topics to prototype constructors. Decoding an event for a
// topic allocates a fresh prototype and fills it with the decoded payload.
//
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	prototypes map[string]func() any
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{prototypes: make(map[string]func() any)}
}

// Register binds a prototype constructor to a topic, replacing any previous
// binding. The constructor should return a pointer so Decode can fill it.
func (r *Registry) Register(topic string, prototype func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prototypes[topic] = prototype
}

// New allocates a prototype for the topic.
func (r *Registry) New(topic string) (any, error) {
	r.mu.RLock()
	prototype, exists := r.prototypes[topic]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Join(recorder.ErrProgramming, fmt.Errorf("%w: %s", ErrUnregisteredTopic, topic))
	}

	return prototype(), nil
}

// JSONMapper implements Mapper with a JSONTranscoder and a topic Registry.
type JSONMapper struct {
	transcoder Transcoder
	registry   *Registry
}

// NewJSONMapper creates a Mapper that encodes payloads as JSON and decodes
// them into prototypes from the registry.
func NewJSONMapper(registry *Registry) *JSONMapper {
	return &JSONMapper{transcoder: NewJSONTranscoder(), registry: registry}
}

// NewMapper creates a Mapper with a custom transcoder.
func NewMapper(transcoder Transcoder, registry *Registry) *JSONMapper {
	return &JSONMapper{transcoder: transcoder, registry: registry}
}

func (m *JSONMapper) ToStored(event DomainEvent) (recorder.StoredEvent, error) {
	state, encodeErr := m.transcoder.Encode(event.Payload)
	if encodeErr != nil {
		return recorder.StoredEvent{}, encodeErr
	}

	return recorder.BuildStoredEvent(event.OriginatorID, event.OriginatorVersion, event.Topic, state)
}

func (m *JSONMapper) FromStored(stored recorder.StoredEvent) (DomainEvent, error) {
	payload, protoErr := m.registry.New(stored.Topic)
	if protoErr != nil {
		return DomainEvent{}, protoErr
	}

	if decodeErr := m.transcoder.Decode(stored.State, payload); decodeErr != nil {
		return DomainEvent{}, decodeErr
	}

	return DomainEvent{
		OriginatorID:      stored.OriginatorID,
		OriginatorVersion: stored.OriginatorVersion,
		Topic:             stored.Topic,
		Payload:           payload,
	}, nil
}

var _ Mapper = (*JSONMapper)(nil)
