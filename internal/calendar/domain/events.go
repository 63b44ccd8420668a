package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// AggregateTypeConnectedCalendar is the outbox aggregate type of calendars.
const AggregateTypeConnectedCalendar = "connected_calendar"

const (
	RoutingKeyCalendarConnected    = "calendar.connected"
	RoutingKeyCalendarDisconnected = "calendar.disconnected"
	RoutingKeyCalendarUpdated      = "calendar.updated"
)

// CalendarPayload identifies the calendar in every calendar event.
type CalendarPayload struct {
	HostID     uuid.UUID    `json:"host_id"`
	Provider   ProviderType `json:"provider"`
	CalendarID string       `json:"calendar_id"`
}

func calendarPayload(c *ConnectedCalendar) CalendarPayload {
	return CalendarPayload{HostID: c.hostID, Provider: c.provider, CalendarID: c.calendarID}
}

// CalendarConnected is published when a host links a calendar.
type CalendarConnected struct {
	sharedDomain.BaseEvent
	CalendarPayload
	Name       string `json:"name"`
	BusySource bool   `json:"busy_source"`
	PushTarget bool   `json:"push_target"`
}

func NewCalendarConnected(c *ConnectedCalendar, now time.Time) *CalendarConnected {
	return &CalendarConnected{
		BaseEvent:       sharedDomain.NewBaseEvent(c.ID(), AggregateTypeConnectedCalendar, RoutingKeyCalendarConnected, now),
		CalendarPayload: calendarPayload(c),
		Name:            c.name,
		BusySource:      c.isBusySource,
		PushTarget:      c.isPushTarget,
	}
}

// CalendarDisconnected is published when a host unlinks a calendar.
type CalendarDisconnected struct {
	sharedDomain.BaseEvent
	CalendarPayload
}

func NewCalendarDisconnected(c *ConnectedCalendar, now time.Time) *CalendarDisconnected {
	return &CalendarDisconnected{
		BaseEvent:       sharedDomain.NewBaseEvent(c.ID(), AggregateTypeConnectedCalendar, RoutingKeyCalendarDisconnected, now),
		CalendarPayload: calendarPayload(c),
	}
}

// CalendarUpdated is published when calendar settings change.
type CalendarUpdated struct {
	sharedDomain.BaseEvent
	CalendarPayload
	Changes []string `json:"changes"`
}

func NewCalendarUpdated(c *ConnectedCalendar, changes []string, now time.Time) *CalendarUpdated {
	return &CalendarUpdated{
		BaseEvent:       sharedDomain.NewBaseEvent(c.ID(), AggregateTypeConnectedCalendar, RoutingKeyCalendarUpdated, now),
		CalendarPayload: calendarPayload(c),
		Changes:         changes,
	}
}
