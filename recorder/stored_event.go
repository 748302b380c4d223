package recorder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// StoredEvents is an alias type for a slice of StoredEvent.
type StoredEvents = []StoredEvent

// StoredEvent is the persisted, immutable record of one domain event for one
// entity at one version.
//
// It is built on scalars to be completely agnostic of the implementation of
// domain events in the client code; State is an opaque byte array produced by
// the codec boundary and never interpreted by recorders.
//
// While its properties are exported, it should only be constructed with the
// supplied factory method BuildStoredEvent.
type StoredEvent struct {
	OriginatorID      uuid.UUID
	OriginatorVersion int64
	Topic             string
	State             []byte
}

// BuildStoredEvent is a factory method for StoredEvent.
//
// It populates the StoredEvent with the given scalar input.
// Returns an error if the originator id is the nil UUID, the version is below
// one, or the topic is empty.
func BuildStoredEvent(originatorID uuid.UUID, originatorVersion int64, topic string, state []byte) (StoredEvent, error) {
	if originatorID == uuid.Nil {
		return StoredEvent{}, ErrNilOriginatorID
	}

	if originatorVersion < 1 {
		return StoredEvent{}, ErrInvalidOriginatorVersion
	}

	if topic == "" {
		return StoredEvent{}, ErrEmptyTopic
	}

	return StoredEvent{
		OriginatorID:      originatorID,
		OriginatorVersion: originatorVersion,
		Topic:             topic,
		State:             state,
	}, nil
}

// Notifications is an alias type for a slice of Notification.
type Notifications = []Notification

// Notification is a StoredEvent enriched with a globally ordered id, used for
// cross-application streaming. Notifications are produced only by
// ApplicationRecorder implementations and derived ones; their ids are strictly
// increasing and, once a notification is visible to any reader, every
// notification with a lower id is already durably committed and visible.
type Notification struct {
	ID                int64
	OriginatorID      uuid.UUID
	OriginatorVersion int64
	Topic             string
	State             []byte
}

// Tracking is a consumer's durable record that it has applied a specific
// notification, enabling exactly-once consumption. It is written in the same
// transaction as the StoredEvents it accompanies.
//
// It should only be constructed with the supplied factory method BuildTracking.
type Tracking struct {
	ApplicationName string
	NotificationID  int64
}

// BuildTracking is a factory method for Tracking.
//
// Returns an error if the application name is empty or the notification id is
// below one.
func BuildTracking(applicationName string, notificationID int64) (Tracking, error) {
	if applicationName == "" {
		return Tracking{}, ErrEmptyApplicationName
	}

	if notificationID < 1 {
		return Tracking{}, ErrInvalidNotificationID
	}

	return Tracking{
		ApplicationName: applicationName,
		NotificationID:  notificationID,
	}, nil
}

// Section addresses a bounded, inclusive range of notification ids the way
// consumers do at the application boundary, using a "start,end" identifier.
type Section struct {
	Start int64
	End   int64
}

// ParseSection parses a "start,end" section identifier into a Section.
//
// Returns an error if the identifier is malformed or describes an empty or
// negative range.
func ParseSection(sectionID string) (Section, error) {
	parts := strings.Split(sectionID, ",")
	if len(parts) != 2 {
		return Section{}, fmt.Errorf("%w: %q", ErrInvalidSectionID, sectionID)
	}

	start, startErr := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if startErr != nil {
		return Section{}, fmt.Errorf("%w: %q", ErrInvalidSectionID, sectionID)
	}

	end, endErr := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if endErr != nil {
		return Section{}, fmt.Errorf("%w: %q", ErrInvalidSectionID, sectionID)
	}

	if start < 1 || end < start {
		return Section{}, fmt.Errorf("%w: %q", ErrInvalidSectionID, sectionID)
	}

	return Section{Start: start, End: end}, nil
}

// String renders the Section back into its "start,end" identifier form.
func (s Section) String() string {
	return fmt.Sprintf("%d,%d", s.Start, s.End)
}

// Limit returns the maximum number of notifications the section can span.
func (s Section) Limit() int {
	return int(s.End - s.Start + 1)
}
