package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

const aggregateType = "Booking"

// Routing keys of booking events.
const (
	RoutingKeyCreated   = "booking.created"
	RoutingKeyAccepted  = "booking.accepted"
	RoutingKeyRejected  = "booking.rejected"
	RoutingKeyCancelled = "booking.cancelled"
)

// BookingPayload is the state carried by every booking event.
type BookingPayload struct {
	BookingID         uuid.UUID `json:"booking_id"`
	EventTypeID       uuid.UUID `json:"event_type_id"`
	HostID            uuid.UUID `json:"host_id"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Attendee          Attendee  `json:"attendee"`
	Status            Status    `json:"status"`
	RecurrenceGroupID uuid.UUID `json:"recurrence_group_id"`
	OccurrenceIndex   int       `json:"occurrence_index"`
}

func payloadOf(b *Booking) BookingPayload {
	return BookingPayload{
		BookingID:         b.ID(),
		EventTypeID:       b.eventTypeID,
		HostID:            b.hostID,
		Start:             b.slot.Start,
		End:               b.slot.End,
		Attendee:          b.attendee,
		Status:            b.status,
		RecurrenceGroupID: b.recurrenceGroupID,
		OccurrenceIndex:   b.occurrenceIndex,
	}
}

// BookingCreated is emitted when a booking is first written.
type BookingCreated struct {
	sharedDomain.BaseEvent
	BookingPayload
}

// NewBookingCreated creates a BookingCreated event.
func NewBookingCreated(b *Booking, now time.Time) *BookingCreated {
	return &BookingCreated{
		BaseEvent:      sharedDomain.NewBaseEvent(b.ID(), aggregateType, RoutingKeyCreated, now),
		BookingPayload: payloadOf(b),
	}
}

// BookingAccepted is emitted when a booking becomes binding. Calendar push
// reacts to it.
type BookingAccepted struct {
	sharedDomain.BaseEvent
	BookingPayload
}

// NewBookingAccepted creates a BookingAccepted event.
func NewBookingAccepted(b *Booking, now time.Time) *BookingAccepted {
	return &BookingAccepted{
		BaseEvent:      sharedDomain.NewBaseEvent(b.ID(), aggregateType, RoutingKeyAccepted, now),
		BookingPayload: payloadOf(b),
	}
}

// BookingRejected is emitted when a host declines a pending booking.
type BookingRejected struct {
	sharedDomain.BaseEvent
	BookingPayload
	Reason string `json:"reason"`
}

// NewBookingRejected creates a BookingRejected event.
func NewBookingRejected(b *Booking, reason string, now time.Time) *BookingRejected {
	return &BookingRejected{
		BaseEvent:      sharedDomain.NewBaseEvent(b.ID(), aggregateType, RoutingKeyRejected, now),
		BookingPayload: payloadOf(b),
		Reason:         reason,
	}
}

// BookingCancelled is emitted when a booking is cancelled.
type BookingCancelled struct {
	sharedDomain.BaseEvent
	BookingPayload
	Reason string `json:"reason,omitempty"`
}

// NewBookingCancelled creates a BookingCancelled event.
func NewBookingCancelled(b *Booking, now time.Time) *BookingCancelled {
	return &BookingCancelled{
		BaseEvent:      sharedDomain.NewBaseEvent(b.ID(), aggregateType, RoutingKeyCancelled, now),
		BookingPayload: payloadOf(b),
		Reason:         b.cancellationReason,
	}
}
