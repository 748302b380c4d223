package eventstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordered-streams/eventrecorder-go/eventstore"
	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/memoryengine"
)

type orderPlaced struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
}

type orderShipped struct {
	OrderID string `json:"order_id"`
	Carrier string `json:"carrier"`
}

const (
	topicOrderPlaced  = "order_placed"
	topicOrderShipped = "order_shipped"
)

func newStore(t *testing.T) *eventstore.EventStore {
	t.Helper()

	registry := eventstore.NewRegistry()
	registry.Register(topicOrderPlaced, func() any { return &orderPlaced{} })
	registry.Register(topicOrderShipped, func() any { return &orderShipped{} })

	store, err := eventstore.New(memoryengine.NewApplicationRecorder(), eventstore.NewJSONMapper(registry))
	require.NoError(t, err)

	return store
}

func Test_EventStore_PutAndGet_RoundTrip(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newStore(t)
	orderID := uuid.New()

	placed, err := eventstore.BuildDomainEvent(orderID, 1, topicOrderPlaced,
		&orderPlaced{OrderID: orderID.String(), Total: 42.5})
	require.NoError(t, err)

	shipped, err := eventstore.BuildDomainEvent(orderID, 2, topicOrderShipped,
		&orderShipped{OrderID: orderID.String(), Carrier: "dhl"})
	require.NoError(t, err)

	// act
	require.NoError(t, store.Put(ctx, eventstore.DomainEvents{placed, shipped}))

	events, err := store.Get(ctx, orderID)

	// assert
	require.NoError(t, err)
	require.Len(t, events, 2)

	gotPlaced, ok := events[0].Payload.(*orderPlaced)
	require.True(t, ok)
	assert.Equal(t, 42.5, gotPlaced.Total)

	gotShipped, ok := events[1].Payload.(*orderShipped)
	require.True(t, ok)
	assert.Equal(t, "dhl", gotShipped.Carrier)
}

func Test_EventStore_Get_WithSelectOptions(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newStore(t)
	orderID := uuid.New()

	for version := int64(1); version <= 5; version++ {
		event, buildErr := eventstore.BuildDomainEvent(orderID, version, topicOrderPlaced,
			&orderPlaced{OrderID: orderID.String()})
		require.NoError(t, buildErr)
		require.NoError(t, store.Put(ctx, eventstore.DomainEvents{event}))
	}

	// act
	events, err := store.Get(ctx, orderID, recorder.WithGt(2), recorder.WithLte(4))

	// assert
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].OriginatorVersion)
	assert.Equal(t, int64(4), events[1].OriginatorVersion)
}

func Test_EventStore_GetLatest(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newStore(t)
	orderID := uuid.New()

	// act + assert: empty originator
	_, found, err := store.GetLatest(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, found)

	// arrange
	for version := int64(1); version <= 3; version++ {
		event, buildErr := eventstore.BuildDomainEvent(orderID, version, topicOrderPlaced,
			&orderPlaced{OrderID: orderID.String()})
		require.NoError(t, buildErr)
		require.NoError(t, store.Put(ctx, eventstore.DomainEvents{event}))
	}

	// act
	latest, found, err := store.GetLatest(ctx, orderID)

	// assert
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(3), latest.OriginatorVersion)
}

func Test_EventStore_Put_SurfacesIntegrityConflicts(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newStore(t)
	orderID := uuid.New()

	event, err := eventstore.BuildDomainEvent(orderID, 1, topicOrderPlaced,
		&orderPlaced{OrderID: orderID.String()})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, eventstore.DomainEvents{event}))

	// act: same originator version again
	err = store.Put(ctx, eventstore.DomainEvents{event})

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)
}

func Test_EventStore_Get_When_TopicIsNotRegistered(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	store, err := eventstore.New(engine, eventstore.NewJSONMapper(eventstore.NewRegistry()))
	require.NoError(t, err)

	orderID := uuid.New()
	stored, err := recorder.BuildStoredEvent(orderID, 1, "unknown_topic", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{stored}))

	// act
	_, err = store.Get(ctx, orderID)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrUnregisteredTopic)
	assert.ErrorIs(t, err, recorder.ErrProgramming)
}

func Test_EventStore_New_ValidatesItsInput(t *testing.T) {
	_, err := eventstore.New(nil, eventstore.NewJSONMapper(eventstore.NewRegistry()))
	assert.ErrorIs(t, err, recorder.ErrNilDatabaseConnection)

	_, err = eventstore.New(memoryengine.NewAggregateRecorder(), nil)
	assert.ErrorIs(t, err, eventstore.ErrNilMapper)
}

func Test_BuildDomainEvent_ValidatesItsInput(t *testing.T) {
	payload := &orderPlaced{}

	_, err := eventstore.BuildDomainEvent(uuid.Nil, 1, topicOrderPlaced, payload)
	assert.ErrorIs(t, err, recorder.ErrNilOriginatorID)

	_, err = eventstore.BuildDomainEvent(uuid.New(), 0, topicOrderPlaced, payload)
	assert.ErrorIs(t, err, recorder.ErrInvalidOriginatorVersion)

	_, err = eventstore.BuildDomainEvent(uuid.New(), 1, "", payload)
	assert.ErrorIs(t, err, recorder.ErrEmptyTopic)

	_, err = eventstore.BuildDomainEvent(uuid.New(), 1, topicOrderPlaced, nil)
	assert.ErrorIs(t, err, eventstore.ErrNilPayload)
}

func Test_JSONTranscoder_Decode_When_StateIsNotValidJSON(t *testing.T) {
	// setup
	transcoder := eventstore.NewJSONTranscoder()

	// act
	err := transcoder.Decode([]byte("not json"), &orderPlaced{})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrInvalidPayloadJSON)
}
