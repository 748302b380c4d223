package memoryengine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/memoryengine"
)

func buildEvent(t *testing.T, originatorID uuid.UUID, version int64) recorder.StoredEvent {
	t.Helper()

	event, err := recorder.BuildStoredEvent(originatorID, version, "order_placed", []byte(`{}`))
	require.NoError(t, err)

	return event
}

func buildEvents(t *testing.T, originatorID uuid.UUID, fromVersion, toVersion int64) recorder.StoredEvents {
	t.Helper()

	events := make(recorder.StoredEvents, 0, toVersion-fromVersion+1)
	for version := fromVersion; version <= toVersion; version++ {
		events = append(events, buildEvent(t, originatorID, version))
	}

	return events
}

func Test_AggregateRecorder_InsertAndSelect_RoundTrip(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	// act
	err := engine.InsertEvents(ctx, buildEvents(t, originatorID, 1, 3))
	require.NoError(t, err)

	events, err := engine.SelectEvents(ctx, originatorID)

	// assert
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.OriginatorVersion)
	}
}

func Test_AggregateRecorder_InsertEvents_When_VersionAlreadyExists(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, originatorID, 1, 2)))

	// act: version 2 collides, version 3 must not survive
	err := engine.InsertEvents(ctx, buildEvents(t, originatorID, 2, 3))

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)

	events, selectErr := engine.SelectEvents(ctx, originatorID)
	require.NoError(t, selectErr)
	assert.Len(t, events, 2)
}

func Test_AggregateRecorder_InsertEvents_When_BatchDuplicatesItself(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	batch := recorder.StoredEvents{
		buildEvent(t, originatorID, 1),
		buildEvent(t, originatorID, 1),
	}

	// act
	err := engine.InsertEvents(ctx, batch)

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)

	events, selectErr := engine.SelectEvents(ctx, originatorID)
	require.NoError(t, selectErr)
	assert.Empty(t, events)
}

func Test_AggregateRecorder_InsertEvents_WithEmptyBatch(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()

	// act + assert: a no-op, not an error
	assert.NoError(t, engine.InsertEvents(ctx, nil))
}

func Test_AggregateRecorder_InsertEvents_RejectsTracking(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	// act
	err = engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 1), recorder.WithTracking(tracking))

	// assert
	assert.ErrorIs(t, err, recorder.ErrProgramming)
}

func Test_AggregateRecorder_SelectEvents_WithRangeOptions(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, originatorID, 1, 10)))

	// act
	events, err := engine.SelectEvents(ctx, originatorID, recorder.WithGt(3), recorder.WithLte(7))

	// assert
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, int64(4), events[0].OriginatorVersion)
	assert.Equal(t, int64(7), events[3].OriginatorVersion)
}

func Test_AggregateRecorder_SelectEvents_LatestSnapshotScan(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, originatorID, 1, 5)))

	// act: reverse scan with limit 1 yields the newest event
	events, err := engine.SelectEvents(ctx, originatorID, recorder.WithDesc(), recorder.WithLimit(1))

	// assert
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].OriginatorVersion)
}

func Test_AggregateRecorder_SelectEvents_OrdersWidelySpacedVersions(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()
	originatorID := uuid.New()

	// versions spread further apart than a 32-bit difference can express
	batch := recorder.StoredEvents{
		buildEvent(t, originatorID, 1),
		buildEvent(t, originatorID, int64(1)<<33),
		buildEvent(t, originatorID, int64(1)<<32),
	}
	require.NoError(t, engine.InsertEvents(ctx, batch))

	// act
	events, err := engine.SelectEvents(ctx, originatorID, recorder.WithDesc())

	// assert
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1)<<33, events[0].OriginatorVersion)
	assert.Equal(t, int64(1)<<32, events[1].OriginatorVersion)
	assert.Equal(t, int64(1), events[2].OriginatorVersion)
}

func Test_AggregateRecorder_SelectEvents_When_OriginatorIsUnknown(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewAggregateRecorder()

	// act
	events, err := engine.SelectEvents(ctx, uuid.New())

	// assert
	require.NoError(t, err)
	assert.Empty(t, events)
}

func Test_ApplicationRecorder_AssignsStrictlyIncreasingNotificationIDs(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 3)))
	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 2)))

	// act
	notifications, err := engine.SelectNotifications(ctx, 1, 100)

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 5)
	for i, notification := range notifications {
		assert.Equal(t, int64(i+1), notification.ID)
	}

	maxID, err := engine.MaxNotificationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxID)
}

func Test_ApplicationRecorder_NotificationOrderMatchesCommitOrder_UnderConcurrency(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	const writers = 8
	const eventsPerWriter = 25

	// act: hammer the recorder from concurrent writers
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(writerNo int) {
			defer wg.Done()

			originatorID := uuid.New()
			for version := int64(1); version <= eventsPerWriter; version++ {
				event, buildErr := recorder.BuildStoredEvent(
					originatorID, version, fmt.Sprintf("topic_%d", writerNo), []byte(`{}`))
				if buildErr != nil {
					return
				}

				_ = engine.InsertEvents(ctx, recorder.StoredEvents{event})
			}
		}(w)
	}
	wg.Wait()

	// assert: ids are gapless, strictly increasing, and per-originator versions
	// appear in version order
	notifications, err := engine.SelectNotifications(ctx, 1, writers*eventsPerWriter)
	require.NoError(t, err)
	require.Len(t, notifications, writers*eventsPerWriter)

	lastVersionPerOriginator := make(map[uuid.UUID]int64)
	for i, notification := range notifications {
		assert.Equal(t, int64(i+1), notification.ID)
		assert.Equal(t, lastVersionPerOriginator[notification.OriginatorID]+1, notification.OriginatorVersion)
		lastVersionPerOriginator[notification.OriginatorID] = notification.OriginatorVersion
	}
}

func Test_ApplicationRecorder_SelectNotifications_WithStopAndTopics(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	orderID := uuid.New()
	invoiceID := uuid.New()

	orderEvent, err := recorder.BuildStoredEvent(orderID, 1, "order_placed", []byte(`{}`))
	require.NoError(t, err)
	invoiceEvent, err := recorder.BuildStoredEvent(invoiceID, 1, "invoice_created", []byte(`{}`))
	require.NoError(t, err)
	orderEvent2, err := recorder.BuildStoredEvent(orderID, 2, "order_shipped", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{orderEvent}))
	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{invoiceEvent}))
	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{orderEvent2}))

	// act: topic filter
	notifications, err := engine.SelectNotifications(ctx, 1, 100,
		recorder.WithTopics("order_placed", "order_shipped"))

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, "order_placed", notifications[0].Topic)
	assert.Equal(t, "order_shipped", notifications[1].Topic)

	// act: stop bound
	notifications, err = engine.SelectNotifications(ctx, 1, 100, recorder.WithStop(2))

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, int64(2), notifications[1].ID)
}

func Test_ApplicationRecorder_SelectNotifications_When_LimitIsNotPositive(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 3)))

	// act + assert: zero and negative limits are rejected, never an unbounded scan
	for _, limit := range []int{0, -1} {
		notifications, err := engine.SelectNotifications(ctx, 1, limit)
		assert.ErrorIs(t, err, recorder.ErrProgramming)
		assert.Nil(t, notifications)
	}
}

func Test_ApplicationRecorder_SelectNotifications_SectionAddressing(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewApplicationRecorder()

	require.NoError(t, engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 10)))

	section, err := recorder.ParseSection("4,6")
	require.NoError(t, err)

	// act
	notifications, err := engine.SelectNotifications(ctx,
		section.Start, section.Limit(), recorder.WithStop(section.End))

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 3)
	assert.Equal(t, int64(4), notifications[0].ID)
	assert.Equal(t, int64(6), notifications[2].ID)
}

func Test_ProcessRecorder_TracksConsumedNotifications(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewProcessRecorder()

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	// act
	err = engine.InsertEvents(ctx, buildEvents(t, uuid.New(), 1, 1), recorder.WithTracking(tracking))
	require.NoError(t, err)

	maxTracking, err := engine.MaxTrackingID(ctx, "reporting")

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxTracking)

	// unknown consumers resume from zero
	maxTracking, err = engine.MaxTrackingID(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxTracking)
}

func Test_ProcessRecorder_DuplicateTracking_FailsTheWholeBatch(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewProcessRecorder()
	originatorID := uuid.New()

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	require.NoError(t, engine.InsertEvents(ctx,
		buildEvents(t, originatorID, 1, 1), recorder.WithTracking(tracking)))

	// act: replaying the same notification is rejected and nothing is stored
	err = engine.InsertEvents(ctx,
		buildEvents(t, originatorID, 2, 2), recorder.WithTracking(tracking))

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)

	events, selectErr := engine.SelectEvents(ctx, originatorID)
	require.NoError(t, selectErr)
	assert.Len(t, events, 1)
}

func Test_ProcessRecorder_TrackingOnlyInsert_RecordsThePosition(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := memoryengine.NewProcessRecorder()

	tracking, err := recorder.BuildTracking("reporting", 9)
	require.NoError(t, err)

	// act: no events, just the consumption record
	err = engine.InsertEvents(ctx, nil, recorder.WithTracking(tracking))
	require.NoError(t, err)

	maxTracking, err := engine.MaxTrackingID(ctx, "reporting")

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(9), maxTracking)
}
