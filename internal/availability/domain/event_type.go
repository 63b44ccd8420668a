package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// Day is the length used for booking-window arithmetic. Windows are
// measured in absolute time, not calendar days.
const Day = 24 * time.Hour

// DefaultMaxOccurrences caps indefinite recurrence when the policy does not.
const DefaultMaxOccurrences = 52

// RecurrenceKind selects whether and how an event type repeats.
type RecurrenceKind string

const (
	RecurrenceNone       RecurrenceKind = "none"
	RecurrenceFixedCount RecurrenceKind = "fixed_count"
	RecurrenceIndefinite RecurrenceKind = "indefinite"
)

// Frequency is the unit of the recurrence interval.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrencePolicy describes how bookings of an event type may repeat.
type RecurrencePolicy struct {
	Kind           RecurrenceKind `json:"kind" yaml:"kind"`
	Frequency      Frequency      `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Interval       int            `json:"interval,omitempty" yaml:"interval,omitempty"`
	Count          int            `json:"count,omitempty" yaml:"count,omitempty"`
	MaxOccurrences int            `json:"max_occurrences,omitempty" yaml:"max_occurrences,omitempty"`
}

// Recurring reports whether the policy allows more than one occurrence.
func (p RecurrencePolicy) Recurring() bool {
	return p.Kind == RecurrenceFixedCount || p.Kind == RecurrenceIndefinite
}

// Limit returns the most occurrences one request may produce.
func (p RecurrencePolicy) Limit() int {
	switch p.Kind {
	case RecurrenceFixedCount:
		return p.Count
	case RecurrenceIndefinite:
		if p.MaxOccurrences > 0 {
			return p.MaxOccurrences
		}
		return DefaultMaxOccurrences
	default:
		return 1
	}
}

func (p RecurrencePolicy) normalized() RecurrencePolicy {
	if p.Kind == "" {
		p.Kind = RecurrenceNone
	}
	if p.Recurring() && p.Interval == 0 {
		p.Interval = 1
	}
	return p
}

func (p RecurrencePolicy) validate() error {
	switch p.Kind {
	case RecurrenceNone:
		return nil
	case RecurrenceFixedCount, RecurrenceIndefinite:
	default:
		return fmt.Errorf("%w: recurrence kind %q", ErrInvalidEventType, p.Kind)
	}
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: recurrence frequency %q", ErrInvalidEventType, p.Frequency)
	}
	if p.Interval < 1 {
		return fmt.Errorf("%w: recurrence interval must be positive", ErrInvalidEventType)
	}
	if p.Kind == RecurrenceFixedCount && p.Count < 1 {
		return fmt.Errorf("%w: fixed recurrence needs a count", ErrInvalidEventType)
	}
	if p.MaxOccurrences < 0 {
		return fmt.Errorf("%w: negative max occurrences", ErrInvalidEventType)
	}
	return nil
}

// BookingWindow bounds how far ahead a slot may start. MaxDaysAhead of
// zero means unbounded.
type BookingWindow struct {
	MinDaysAhead int `json:"min_days_ahead" yaml:"min_days_ahead"`
	MaxDaysAhead int `json:"max_days_ahead" yaml:"max_days_ahead"`
}

// EventTypeParams carries the editable attributes of an event type.
type EventTypeParams struct {
	HostID               uuid.UUID
	ScheduleID           uuid.UUID
	Slug                 string
	Title                string
	Duration             time.Duration
	BufferBefore         time.Duration
	BufferAfter          time.Duration
	MinimumNotice        time.Duration
	Granularity          time.Duration
	Window               BookingWindow
	Recurrence           RecurrencePolicy
	RequiresConfirmation bool
}

func (p EventTypeParams) validate() error {
	var problems []string
	if p.HostID == uuid.Nil {
		problems = append(problems, "host id is required")
	}
	if p.ScheduleID == uuid.Nil {
		problems = append(problems, "schedule id is required")
	}
	if strings.TrimSpace(p.Slug) == "" {
		problems = append(problems, "slug is required")
	}
	if p.Duration <= 0 {
		problems = append(problems, "duration must be positive")
	}
	if p.BufferBefore < 0 || p.BufferAfter < 0 {
		problems = append(problems, "buffers cannot be negative")
	}
	if p.MinimumNotice < 0 {
		problems = append(problems, "minimum notice cannot be negative")
	}
	if p.Granularity < 0 {
		problems = append(problems, "granularity cannot be negative")
	}
	if p.Window.MinDaysAhead < 0 || p.Window.MaxDaysAhead < 0 {
		problems = append(problems, "booking window cannot be negative")
	}
	if p.Window.MaxDaysAhead > 0 && p.Window.MaxDaysAhead <= p.Window.MinDaysAhead {
		problems = append(problems, "max days ahead must exceed min days ahead")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEventType, strings.Join(problems, "; "))
	}
	return p.Recurrence.validate()
}

// EventType is a bookable offering backed by one schedule. It is treated
// as immutable for the length of a slot computation.
type EventType struct {
	sharedDomain.BaseAggregateRoot
	params EventTypeParams
}

// NewEventType validates params and creates an event type.
func NewEventType(params EventTypeParams, now time.Time) (*EventType, error) {
	params.Recurrence = params.Recurrence.normalized()
	params.Slug = strings.TrimSpace(params.Slug)
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &EventType{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		params:            params,
	}, nil
}

// RehydrateEventType rebuilds an event type from storage.
func RehydrateEventType(id uuid.UUID, params EventTypeParams, createdAt, updatedAt time.Time, version int) (*EventType, error) {
	params.Recurrence = params.Recurrence.normalized()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &EventType{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		params: params,
	}, nil
}

// Update replaces the editable attributes. The host cannot change.
func (e *EventType) Update(params EventTypeParams, now time.Time) error {
	params.Recurrence = params.Recurrence.normalized()
	params.Slug = strings.TrimSpace(params.Slug)
	if params.HostID != e.params.HostID {
		return fmt.Errorf("%w: host cannot change", ErrInvalidEventType)
	}
	if err := params.validate(); err != nil {
		return err
	}
	e.params = params
	e.Touch(now)
	return nil
}

// Getters
func (e *EventType) Params() EventTypeParams      { return e.params }
func (e *EventType) HostID() uuid.UUID            { return e.params.HostID }
func (e *EventType) ScheduleID() uuid.UUID        { return e.params.ScheduleID }
func (e *EventType) Slug() string                 { return e.params.Slug }
func (e *EventType) Title() string                { return e.params.Title }
func (e *EventType) Duration() time.Duration      { return e.params.Duration }
func (e *EventType) BufferBefore() time.Duration  { return e.params.BufferBefore }
func (e *EventType) BufferAfter() time.Duration   { return e.params.BufferAfter }
func (e *EventType) MinimumNotice() time.Duration { return e.params.MinimumNotice }
func (e *EventType) Window() BookingWindow        { return e.params.Window }
func (e *EventType) Recurrence() RecurrencePolicy { return e.params.Recurrence }
func (e *EventType) RequiresConfirmation() bool   { return e.params.RequiresConfirmation }

// Granularity is the step between slot starts; zero means the duration.
func (e *EventType) Granularity() time.Duration {
	if e.params.Granularity > 0 {
		return e.params.Granularity
	}
	return e.params.Duration
}

// ResourceKey identifies what reservations of this event type contend for.
func (e *EventType) ResourceKey() string {
	return ResourceKeyForHost(e.params.HostID)
}

// ResourceKeyForHost is the resource key of a host's calendar.
func ResourceKeyForHost(hostID uuid.UUID) string {
	return "host:" + hostID.String()
}

// SlotAt returns the slot of this event type starting at start.
func (e *EventType) SlotAt(start time.Time) CandidateSlot {
	return CandidateSlot{Start: start, End: start.Add(e.params.Duration)}
}

// Footprint is the slot widened by both buffers: the time a booking
// actually blocks.
func (e *EventType) Footprint(slot CandidateSlot) Interval {
	return slot.Interval().Expand(e.params.BufferBefore, e.params.BufferAfter)
}

// EarliestStart is the first instant a slot may start at, given now.
func (e *EventType) EarliestStart(now time.Time) time.Time {
	notice := now.Add(e.params.MinimumNotice)
	window := now.Add(time.Duration(e.params.Window.MinDaysAhead) * Day)
	if window.After(notice) {
		return window
	}
	return notice
}

// LatestStart is the exclusive upper bound on slot starts. ok is false
// when the window is unbounded.
func (e *EventType) LatestStart(now time.Time) (t time.Time, ok bool) {
	if e.params.Window.MaxDaysAhead <= 0 {
		return time.Time{}, false
	}
	return now.Add(time.Duration(e.params.Window.MaxDaysAhead) * Day), true
}

// Admits reports whether a slot starting at start satisfies minimum notice
// and the booking window.
func (e *EventType) Admits(start, now time.Time) bool {
	if start.Before(e.EarliestStart(now)) {
		return false
	}
	if latest, ok := e.LatestStart(now); ok && !start.Before(latest) {
		return false
	}
	return true
}
