package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Live reports whether a booking in this status blocks its footprint.
func (s Status) Live() bool { return s == StatusPending || s == StatusAccepted }

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusRejected || s == StatusCancelled }

// Attendee is the guest who booked.
type Attendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"time_zone"`
}

// Validate normalizes and checks the attendee.
func (a *Attendee) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAttendee)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalidAttendee, a.Email)
	}
	if a.TimeZone == "" {
		a.TimeZone = "UTC"
	}
	if _, err := availability.LoadLocation(a.TimeZone); err != nil {
		return err
	}
	return nil
}

// Booking is a reservation of one slot of an event type. The blocked range
// is the slot widened by the event type's buffers.
type Booking struct {
	sharedDomain.BaseAggregateRoot
	eventTypeID        uuid.UUID
	hostID             uuid.UUID
	resourceKey        string
	slot               availability.CandidateSlot
	blocked            availability.Interval
	attendee           Attendee
	status             Status
	recurrenceGroupID  uuid.UUID
	occurrenceIndex    int
	cancellationReason string
}

// NewBooking creates a pending booking of slot.
func NewBooking(et *availability.EventType, slot availability.CandidateSlot, attendee Attendee, now time.Time) (*Booking, error) {
	return newBooking(uuid.New(), et, slot, attendee, uuid.Nil, 0, now)
}

// NewOccurrence creates occurrence index of a recurring booking. The first
// occurrence takes the group id as its own id.
func NewOccurrence(
	et *availability.EventType,
	slot availability.CandidateSlot,
	attendee Attendee,
	groupID uuid.UUID,
	index int,
	now time.Time,
) (*Booking, error) {
	id := uuid.New()
	if index == 0 {
		id = groupID
	}
	return newBooking(id, et, slot, attendee, groupID, index, now)
}

func newBooking(
	id uuid.UUID,
	et *availability.EventType,
	slot availability.CandidateSlot,
	attendee Attendee,
	groupID uuid.UUID,
	index int,
	now time.Time,
) (*Booking, error) {
	if err := attendee.Validate(); err != nil {
		return nil, err
	}
	if !slot.Start.Before(slot.End) {
		return nil, fmt.Errorf("%w: slot %s", availability.ErrInvalidRange, slot.Interval())
	}
	slot = availability.CandidateSlot{Start: slot.Start.UTC(), End: slot.End.UTC()}
	b := &Booking{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRootWithID(id, now),
		eventTypeID:       et.ID(),
		hostID:            et.HostID(),
		resourceKey:       et.ResourceKey(),
		slot:              slot,
		blocked:           et.Footprint(slot),
		attendee:          attendee,
		status:            StatusPending,
		recurrenceGroupID: groupID,
		occurrenceIndex:   index,
	}
	b.AddDomainEvent(NewBookingCreated(b, now))
	return b, nil
}

// Snapshot is the persisted state of a booking.
type Snapshot struct {
	ID                 uuid.UUID
	EventTypeID        uuid.UUID
	HostID             uuid.UUID
	ResourceKey        string
	Start              time.Time
	End                time.Time
	BlockedStart       time.Time
	BlockedEnd         time.Time
	Attendee           Attendee
	Status             Status
	RecurrenceGroupID  uuid.UUID
	OccurrenceIndex    int
	CancellationReason string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Rehydrate rebuilds a booking from storage.
func Rehydrate(s Snapshot) *Booking {
	return &Booking{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt), s.Version),
		eventTypeID:        s.EventTypeID,
		hostID:             s.HostID,
		resourceKey:        s.ResourceKey,
		slot:               availability.CandidateSlot{Start: s.Start.UTC(), End: s.End.UTC()},
		blocked:            availability.Interval{Start: s.BlockedStart.UTC(), End: s.BlockedEnd.UTC()},
		attendee:           s.Attendee,
		status:             s.Status,
		recurrenceGroupID:  s.RecurrenceGroupID,
		occurrenceIndex:    s.OccurrenceIndex,
		cancellationReason: s.CancellationReason,
	}
}

// Snapshot returns the persisted state.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:                 b.ID(),
		EventTypeID:        b.eventTypeID,
		HostID:             b.hostID,
		ResourceKey:        b.resourceKey,
		Start:              b.slot.Start,
		End:                b.slot.End,
		BlockedStart:       b.blocked.Start,
		BlockedEnd:         b.blocked.End,
		Attendee:           b.attendee,
		Status:             b.status,
		RecurrenceGroupID:  b.recurrenceGroupID,
		OccurrenceIndex:    b.occurrenceIndex,
		CancellationReason: b.cancellationReason,
		Version:            b.Version(),
		CreatedAt:          b.CreatedAt(),
		UpdatedAt:          b.UpdatedAt(),
	}
}

// Getters
func (b *Booking) EventTypeID() uuid.UUID           { return b.eventTypeID }
func (b *Booking) HostID() uuid.UUID                { return b.hostID }
func (b *Booking) ResourceKey() string              { return b.resourceKey }
func (b *Booking) Slot() availability.CandidateSlot { return b.slot }
func (b *Booking) Start() time.Time                 { return b.slot.Start }
func (b *Booking) End() time.Time                   { return b.slot.End }
func (b *Booking) Blocked() availability.Interval   { return b.blocked }
func (b *Booking) Attendee() Attendee               { return b.attendee }
func (b *Booking) Status() Status                   { return b.status }
func (b *Booking) RecurrenceGroupID() uuid.UUID     { return b.recurrenceGroupID }
func (b *Booking) OccurrenceIndex() int             { return b.occurrenceIndex }
func (b *Booking) CancellationReason() string       { return b.cancellationReason }

func (b *Booking) transition(to Status, allowed ...Status) error {
	for _, from := range allowed {
		if b.status == from {
			b.status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.status, to)
}

// Accept confirms a pending booking.
func (b *Booking) Accept(now time.Time) error {
	if err := b.transition(StatusAccepted, StatusPending); err != nil {
		return err
	}
	b.Touch(now)
	b.AddDomainEvent(NewBookingAccepted(b, now))
	return nil
}

// Reject declines a pending booking.
func (b *Booking) Reject(reason string, now time.Time) error {
	if err := b.transition(StatusRejected, StatusPending); err != nil {
		return err
	}
	b.cancellationReason = reason
	b.Touch(now)
	b.AddDomainEvent(NewBookingRejected(b, reason, now))
	return nil
}

// Cancel frees the booking's footprint.
func (b *Booking) Cancel(reason string, now time.Time) error {
	if err := b.transition(StatusCancelled, StatusPending, StatusAccepted); err != nil {
		return err
	}
	b.cancellationReason = strings.TrimSpace(reason)
	b.Touch(now)
	b.AddDomainEvent(NewBookingCancelled(b, now))
	return nil
}
