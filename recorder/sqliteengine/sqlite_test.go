package sqliteengine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
	"github.com/ordered-streams/eventrecorder-go/recorder/sqliteengine"
)

func newTestRecorder(t *testing.T) *sqliteengine.ProcessRecorder {
	t.Helper()
	ctx := context.Background()

	db, err := sqliteengine.Open(filepath.Join(t.TempDir(), "recorder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	connectionPool, err := pool.New(
		sqliteengine.NewSessionFactory(db, 0),
		pool.WithPoolSize(2),
		pool.WithSingleWriter(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = connectionPool.Close() })

	engine, err := sqliteengine.NewProcessRecorder(connectionPool, sqliteengine.WithReaderDB(db))
	require.NoError(t, err)
	require.NoError(t, engine.CreateTable(ctx))

	return engine
}

func buildEvent(t *testing.T, originatorID uuid.UUID, version int64, topic string) recorder.StoredEvent {
	t.Helper()

	event, err := recorder.BuildStoredEvent(originatorID, version, topic, []byte(`{"originator": "`+originatorID.String()+`"}`))
	require.NoError(t, err)

	return event
}

func Test_SQLite_InsertAndSelect_RoundTrip(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)
	originatorID := uuid.New()

	batch := recorder.StoredEvents{
		buildEvent(t, originatorID, 1, "order_placed"),
		buildEvent(t, originatorID, 2, "order_shipped"),
	}

	// act
	require.NoError(t, engine.InsertEvents(ctx, batch))

	events, err := engine.SelectEvents(ctx, originatorID)

	// assert
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, originatorID, events[0].OriginatorID)
	assert.Equal(t, int64(1), events[0].OriginatorVersion)
	assert.Equal(t, "order_placed", events[0].Topic)
	assert.Equal(t, batch[0].State, events[0].State)
	assert.Equal(t, int64(2), events[1].OriginatorVersion)
}

func Test_SQLite_InsertEvents_When_VersionAlreadyExists(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)
	originatorID := uuid.New()

	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, originatorID, 1, "order_placed"),
	}))

	// act: version 1 collides, version 2 must roll back with it
	err := engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, originatorID, 1, "order_placed"),
		buildEvent(t, originatorID, 2, "order_shipped"),
	})

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)

	events, selectErr := engine.SelectEvents(ctx, originatorID)
	require.NoError(t, selectErr)
	assert.Len(t, events, 1)
}

func Test_SQLite_SelectEvents_WithOptions(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)
	originatorID := uuid.New()

	for version := int64(1); version <= 5; version++ {
		require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
			buildEvent(t, originatorID, version, "order_placed"),
		}))
	}

	// act: bounded ascending range
	events, err := engine.SelectEvents(ctx, originatorID, recorder.WithGt(1), recorder.WithLte(4))

	// assert
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].OriginatorVersion)

	// act: reverse scan with limit 1 yields the newest event
	events, err = engine.SelectEvents(ctx, originatorID, recorder.WithDesc(), recorder.WithLimit(1))

	// assert
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].OriginatorVersion)
}

func Test_SQLite_Notifications_FollowCommitOrder(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)

	first := uuid.New()
	second := uuid.New()

	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, first, 1, "order_placed"),
		buildEvent(t, first, 2, "order_shipped"),
	}))
	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, second, 1, "invoice_created"),
	}))

	// act
	notifications, err := engine.SelectNotifications(ctx, 1, 100)

	// assert: ids are gapless and match insertion order
	require.NoError(t, err)
	require.Len(t, notifications, 3)
	for i, notification := range notifications {
		assert.Equal(t, int64(i+1), notification.ID)
	}
	assert.Equal(t, first, notifications[0].OriginatorID)
	assert.Equal(t, second, notifications[2].OriginatorID)

	maxID, err := engine.MaxNotificationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxID)
}

func Test_SQLite_SelectNotifications_WithStopAndTopics(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)

	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, uuid.New(), 1, "order_placed"),
		buildEvent(t, uuid.New(), 1, "invoice_created"),
		buildEvent(t, uuid.New(), 1, "order_placed"),
	}))

	// act: topic filter
	notifications, err := engine.SelectNotifications(ctx, 1, 100, recorder.WithTopics("order_placed"))

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, int64(1), notifications[0].ID)
	assert.Equal(t, int64(3), notifications[1].ID)

	// act: stop bound
	notifications, err = engine.SelectNotifications(ctx, 2, 100, recorder.WithStop(2))

	// assert
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, int64(2), notifications[0].ID)
}

func Test_SQLite_SelectNotifications_When_LimitIsNotPositive(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)

	// act
	_, err := engine.SelectNotifications(ctx, 1, 0)

	// assert
	assert.ErrorIs(t, err, recorder.ErrProgramming)
}

func Test_SQLite_Tracking_RoundTrip(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	// act
	err = engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, uuid.New(), 1, "order_placed"),
	}, recorder.WithTracking(tracking))
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

func Test_SQLite_DuplicateTracking_RollsBackTheWholeTransaction(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)
	originatorID := uuid.New()

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	require.NoError(t, engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, originatorID, 1, "order_placed"),
	}, recorder.WithTracking(tracking)))

	// act: replaying the same notification is rejected and the events roll back
	err = engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, originatorID, 2, "order_shipped"),
	}, recorder.WithTracking(tracking))

	// assert
	assert.ErrorIs(t, err, recorder.ErrIntegrity)

	events, selectErr := engine.SelectEvents(ctx, originatorID)
	require.NoError(t, selectErr)
	assert.Len(t, events, 1)
}

func Test_SQLite_TrackingOnlyInsert_RecordsThePosition(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := newTestRecorder(t)

	tracking, err := recorder.BuildTracking("reporting", 5)
	require.NoError(t, err)

	// act
	require.NoError(t, engine.InsertEvents(ctx, nil, recorder.WithTracking(tracking)))

	maxTracking, err := engine.MaxTrackingID(ctx, "reporting")

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxTracking)
}

func Test_SQLite_AggregateRecorder_RejectsTracking(t *testing.T) {
	// setup
	ctx := context.Background()

	db, err := sqliteengine.Open(filepath.Join(t.TempDir(), "recorder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	connectionPool, err := pool.New(sqliteengine.NewSessionFactory(db, 0), pool.WithSingleWriter())
	require.NoError(t, err)
	t.Cleanup(func() { _ = connectionPool.Close() })

	engine, err := sqliteengine.NewAggregateRecorder(connectionPool, sqliteengine.WithReaderDB(db))
	require.NoError(t, err)
	require.NoError(t, engine.CreateTable(ctx))

	tracking, err := recorder.BuildTracking("reporting", 1)
	require.NoError(t, err)

	// act
	err = engine.InsertEvents(ctx, recorder.StoredEvents{
		buildEvent(t, uuid.New(), 1, "order_placed"),
	}, recorder.WithTracking(tracking))

	// assert
	assert.ErrorIs(t, err, recorder.ErrProgramming)
}
