package recorder

import (
	"context"

	"github.com/google/uuid"
)

// AggregateRecorder is a per-entity append-only event log with optimistic
// concurrency control.
//
// InsertEvents appends the batch all-or-nothing inside one transaction; it
// fails with ErrIntegrity if any event's (originator id, originator version)
// already exists or the batch itself contains a duplicate, and in either case
// nothing from the batch is persisted. Versions for an originator must extend
// the existing sequence without gaps; gap-freedom is the caller's contract and
// is verified only through primary-key uniqueness.
//
// SelectEvents scans one originator's events by version, ascending by default.
type AggregateRecorder interface {
	InsertEvents(ctx context.Context, events StoredEvents, options ...InsertOption) error
	SelectEvents(ctx context.Context, originatorID uuid.UUID, options ...SelectOption) (StoredEvents, error)
}

// ApplicationRecorder is an AggregateRecorder that additionally assigns a
// global, strictly increasing notification id to every inserted event, shared
// across all entities and allocated at commit time under an ordering-preserving
// serialization window so that commit order matches notification-id order.
type ApplicationRecorder interface {
	AggregateRecorder

	// SelectNotifications scans notifications with id >= start, ascending,
	// bounded by limit.
	SelectNotifications(ctx context.Context, start int64, limit int, options ...NotificationOption) (Notifications, error)

	// MaxNotificationID reports the current high-water mark, 0 if empty.
	MaxNotificationID(ctx context.Context) (int64, error)
}

// ProcessRecorder is an ApplicationRecorder that additionally maintains an
// idempotent per-consumer tracking log. A Tracking row is written in the same
// transaction as the events it accompanies (via WithTracking); inserting a
// duplicate (application name, notification id) pair fails the whole
// transaction with ErrIntegrity, which callers treat as "already processed".
type ProcessRecorder interface {
	ApplicationRecorder

	// MaxTrackingID reports the resume position for a consumer, 0 if none
	// has been recorded.
	MaxTrackingID(ctx context.Context, applicationName string) (int64, error)
}

// InsertParams collects the effective parameters of an InsertEvents call after
// all options have been applied. Engines use ApplyInsertOptions to build it.
type InsertParams struct {
	Tracking *Tracking
}

// InsertOption defines a functional option for InsertEvents.
type InsertOption func(*InsertParams)

// WithTracking records the given Tracking row in the same transaction as the
// inserted events. Only ProcessRecorder implementations honor it; other
// engines reject it with ErrProgramming.
func WithTracking(tracking Tracking) InsertOption {
	return func(p *InsertParams) {
		p.Tracking = &tracking
	}
}

// ApplyInsertOptions folds the options into an InsertParams for engine use.
func ApplyInsertOptions(options ...InsertOption) InsertParams {
	params := InsertParams{}
	for _, option := range options {
		option(&params)
	}

	return params
}

// SelectParams collects the effective parameters of a SelectEvents call after
// all options have been applied. Engines use ApplySelectOptions to build it.
type SelectParams struct {
	Gt    int64
	Lte   int64
	Desc  bool
	Limit int
}

// SelectOption defines a functional option for SelectEvents.
type SelectOption func(*SelectParams)

// WithGt restricts the scan to versions strictly greater than the given one.
func WithGt(version int64) SelectOption {
	return func(p *SelectParams) {
		p.Gt = version
	}
}

// WithLte restricts the scan to versions less than or equal to the given one.
func WithLte(version int64) SelectOption {
	return func(p *SelectParams) {
		p.Lte = version
	}
}

// WithDesc reverses the scan to descending version order, typically combined
// with WithLimit(1) to fetch the latest event or snapshot cheaply.
func WithDesc() SelectOption {
	return func(p *SelectParams) {
		p.Desc = true
	}
}

// WithLimit bounds the number of returned events.
func WithLimit(limit int) SelectOption {
	return func(p *SelectParams) {
		p.Limit = limit
	}
}

// ApplySelectOptions folds the options into a SelectParams for engine use.
// Lte and Limit default to "unbounded" (respectively 0, meaning no upper
// version bound, and 0, meaning no row cap).
func ApplySelectOptions(options ...SelectOption) SelectParams {
	params := SelectParams{}
	for _, option := range options {
		option(&params)
	}

	return params
}

// NotificationParams collects the effective parameters of a
// SelectNotifications call after all options have been applied.
type NotificationParams struct {
	Stop   int64
	Topics []string
}

// NotificationOption defines a functional option for SelectNotifications.
type NotificationOption func(*NotificationParams)

// WithStop bounds the scan at the given notification id, inclusive.
func WithStop(stop int64) NotificationOption {
	return func(p *NotificationParams) {
		p.Stop = stop
	}
}

// WithTopics restricts the scan to notifications whose topic is in the given
// set.
func WithTopics(topics ...string) NotificationOption {
	return func(p *NotificationParams) {
		p.Topics = topics
	}
}

// ApplyNotificationOptions folds the options into a NotificationParams for
// engine use.
func ApplyNotificationOptions(options ...NotificationOption) NotificationParams {
	params := NotificationParams{}
	for _, option := range options {
		option(&params)
	}

	return params
}
