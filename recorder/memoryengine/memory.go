package memoryengine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

var errNonPositiveLimit = errors.New("limit must be positive")

type eventKey struct {
	originatorID      uuid.UUID
	originatorVersion int64
}

type trackingKey struct {
	applicationName string
	notificationID  int64
}

// AggregateRecorder is an in-memory per-entity append-only event log.
type AggregateRecorder struct {
	mu    sync.RWMutex
	store map[uuid.UUID]recorder.StoredEvents
	index map[eventKey]struct{}
}

// NewAggregateRecorder creates an empty in-memory AggregateRecorder.
func NewAggregateRecorder() *AggregateRecorder {
	return &AggregateRecorder{
		store: make(map[uuid.UUID]recorder.StoredEvents),
		index: make(map[eventKey]struct{}),
	}
}

// InsertEvents appends the batch all-or-nothing. A duplicate
// (originator id, originator version) pair, against the store or within the
// batch itself, fails the whole batch with recorder.ErrIntegrity.
func (r *AggregateRecorder) InsertEvents(_ context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	if err := rejectTracking(options...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateLocked(events); err != nil {
		return err
	}

	r.commitLocked(events)

	return nil
}

// SelectEvents scans one originator's events by version, ascending by default.
func (r *AggregateRecorder) SelectEvents(_ context.Context, originatorID uuid.UUID, options ...recorder.SelectOption) (recorder.StoredEvents, error) {
	params := recorder.ApplySelectOptions(options...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := make(recorder.StoredEvents, 0)

	for _, event := range r.store[originatorID] {
		if event.OriginatorVersion <= params.Gt {
			continue
		}

		if params.Lte > 0 && event.OriginatorVersion > params.Lte {
			continue
		}

		selected = append(selected, event)
	}

	slices.SortFunc(selected, func(a, b recorder.StoredEvent) int {
		if params.Desc {
			return cmp.Compare(b.OriginatorVersion, a.OriginatorVersion)
		}
		return cmp.Compare(a.OriginatorVersion, b.OriginatorVersion)
	})

	if params.Limit > 0 && len(selected) > params.Limit {
		selected = selected[:params.Limit]
	}

	return selected, nil
}

// validateLocked checks the batch against the store and against itself; it
// must run under the write lock, before commitLocked.
func (r *AggregateRecorder) validateLocked(events recorder.StoredEvents) error {
	seen := make(map[eventKey]struct{}, len(events))

	for _, event := range events {
		key := eventKey{originatorID: event.OriginatorID, originatorVersion: event.OriginatorVersion}

		if _, exists := r.index[key]; exists {
			return integrityError(event)
		}

		if _, duplicated := seen[key]; duplicated {
			return integrityError(event)
		}

		seen[key] = struct{}{}
	}

	return nil
}

// integrityError wraps recorder.ErrIntegrity with the duplicated event's key.
func integrityError(event recorder.StoredEvent) error {
	return errors.Join(
		recorder.ErrIntegrity,
		fmt.Errorf("event for originator %s with version %d already exists",
			event.OriginatorID, event.OriginatorVersion),
	)
}

func (r *AggregateRecorder) commitLocked(events recorder.StoredEvents) {
	for _, event := range events {
		key := eventKey{originatorID: event.OriginatorID, originatorVersion: event.OriginatorVersion}
		r.index[key] = struct{}{}
		r.store[event.OriginatorID] = append(r.store[event.OriginatorID], event)
	}
}

// ApplicationRecorder is an in-memory AggregateRecorder with a globally
// ordered notification log. The write mutex is the serialization window:
// notification ids are assigned while it is held, so their order always
// matches insertion order.
type ApplicationRecorder struct {
	AggregateRecorder
	notifications recorder.Notifications
}

// NewApplicationRecorder creates an empty in-memory ApplicationRecorder.
func NewApplicationRecorder() *ApplicationRecorder {
	return &ApplicationRecorder{
		AggregateRecorder: AggregateRecorder{
			store: make(map[uuid.UUID]recorder.StoredEvents),
			index: make(map[eventKey]struct{}),
		},
	}
}

// InsertEvents appends the batch and assigns a strictly increasing
// notification id to each inserted event, all-or-nothing.
func (r *ApplicationRecorder) InsertEvents(_ context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	if err := rejectTracking(options...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateLocked(events); err != nil {
		return err
	}

	r.commitLocked(events)
	r.notifyLocked(events)

	return nil
}

// SelectNotifications scans notifications with an id of at least start,
// ascending, bounded by limit.
func (r *ApplicationRecorder) SelectNotifications(_ context.Context, start int64, limit int, options ...recorder.NotificationOption) (recorder.Notifications, error) {
	if limit <= 0 {
		return nil, errors.Join(recorder.ErrProgramming, errNonPositiveLimit)
	}

	params := recorder.ApplyNotificationOptions(options...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := make(recorder.Notifications, 0, limit)

	for _, notification := range r.notifications {
		if notification.ID < start {
			continue
		}

		if params.Stop > 0 && notification.ID > params.Stop {
			break
		}

		if len(params.Topics) > 0 && !slices.Contains(params.Topics, notification.Topic) {
			continue
		}

		selected = append(selected, notification)

		if len(selected) == limit {
			break
		}
	}

	return selected, nil
}

// MaxNotificationID reports the current high-water mark, 0 if empty.
func (r *ApplicationRecorder) MaxNotificationID(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.maxNotificationIDLocked(), nil
}

func (r *ApplicationRecorder) maxNotificationIDLocked() int64 {
	if len(r.notifications) == 0 {
		return 0
	}

	return r.notifications[len(r.notifications)-1].ID
}

func (r *ApplicationRecorder) notifyLocked(events recorder.StoredEvents) {
	nextID := r.maxNotificationIDLocked() + 1

	for i, event := range events {
		r.notifications = append(r.notifications, recorder.Notification{
			ID:                nextID + int64(i),
			OriginatorID:      event.OriginatorID,
			OriginatorVersion: event.OriginatorVersion,
			Topic:             event.Topic,
			State:             event.State,
		})
	}
}

// ProcessRecorder is an in-memory ApplicationRecorder with an idempotent
// per-consumer tracking log.
type ProcessRecorder struct {
	ApplicationRecorder
	tracking    map[trackingKey]struct{}
	maxTracking map[string]int64
}

// NewProcessRecorder creates an empty in-memory ProcessRecorder.
func NewProcessRecorder() *ProcessRecorder {
	return &ProcessRecorder{
		ApplicationRecorder: ApplicationRecorder{
			AggregateRecorder: AggregateRecorder{
				store: make(map[uuid.UUID]recorder.StoredEvents),
				index: make(map[eventKey]struct{}),
			},
		},
		tracking:    make(map[trackingKey]struct{}),
		maxTracking: make(map[string]int64),
	}
}

// InsertEvents appends the batch, assigns notification ids, and records the
// optional tracking row, all in one atomic step. A duplicate tracking row
// fails the whole batch with recorder.ErrIntegrity and nothing is persisted.
func (r *ProcessRecorder) InsertEvents(_ context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if params.Tracking != nil {
		key := trackingKey{
			applicationName: params.Tracking.ApplicationName,
			notificationID:  params.Tracking.NotificationID,
		}

		if _, exists := r.tracking[key]; exists {
			return errors.Join(
				recorder.ErrIntegrity,
				fmt.Errorf("tracking row for application %q and notification id %d already exists",
					params.Tracking.ApplicationName, params.Tracking.NotificationID),
			)
		}
	}

	if err := r.validateLocked(events); err != nil {
		return err
	}

	r.commitLocked(events)
	r.notifyLocked(events)

	if params.Tracking != nil {
		key := trackingKey{
			applicationName: params.Tracking.ApplicationName,
			notificationID:  params.Tracking.NotificationID,
		}
		r.tracking[key] = struct{}{}

		if params.Tracking.NotificationID > r.maxTracking[params.Tracking.ApplicationName] {
			r.maxTracking[params.Tracking.ApplicationName] = params.Tracking.NotificationID
		}
	}

	return nil
}

// MaxTrackingID reports the resume position for a consumer, 0 if none has
// been recorded.
func (r *ProcessRecorder) MaxTrackingID(_ context.Context, applicationName string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.maxTracking[applicationName], nil
}

// rejectTracking refuses the tracking option on recorders that have no
// tracking log.
func rejectTracking(options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)

	if params.Tracking != nil {
		return errors.Join(
			recorder.ErrProgramming,
			errors.New("tracking requires a ProcessRecorder"),
		)
	}

	return nil
}

// Interface conformance guards.
var (
	_ recorder.AggregateRecorder   = (*AggregateRecorder)(nil)
	_ recorder.ApplicationRecorder = (*ApplicationRecorder)(nil)
	_ recorder.ProcessRecorder     = (*ProcessRecorder)(nil)
)
