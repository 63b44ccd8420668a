package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newCalendar(t *testing.T) *domain.ConnectedCalendar {
	t.Helper()
	cal, err := domain.NewConnectedCalendar(uuid.New(), domain.ProviderGoogle, "primary", "Work", now)
	require.NoError(t, err)
	return cal
}

func TestNewConnectedCalendar(t *testing.T) {
	hostID := uuid.New()

	cal, err := domain.NewConnectedCalendar(hostID, domain.ProviderGoogle, " primary ", "Work", now)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, cal.ID())
	assert.Equal(t, hostID, cal.HostID())
	assert.Equal(t, "primary", cal.CalendarID())
	assert.Equal(t, "google:primary", cal.SourceName())
	assert.True(t, cal.ConsultForBusyTime())
	assert.False(t, cal.ReceivesBookings())
	assert.Equal(t, "{}", cal.ConfigJSON())

	events := cal.DomainEvents()
	require.Len(t, events, 1)
	connected, ok := events[0].(*domain.CalendarConnected)
	require.True(t, ok)
	assert.Equal(t, domain.RoutingKeyCalendarConnected, connected.RoutingKey())
	assert.Equal(t, hostID, connected.HostID)
	assert.True(t, connected.BusySource)
}

func TestNewConnectedCalendar_Validation(t *testing.T) {
	tests := []struct {
		name       string
		hostID     uuid.UUID
		provider   domain.ProviderType
		calendarID string
		calName    string
		wantErr    error
	}{
		{"nil host", uuid.Nil, domain.ProviderGoogle, "primary", "Work", domain.ErrEmptyHostID},
		{"bad provider", uuid.New(), "exchange", "primary", "Work", domain.ErrInvalidProvider},
		{"blank calendar id", uuid.New(), domain.ProviderGoogle, "  ", "Work", domain.ErrEmptyCalendarID},
		{"blank name", uuid.New(), domain.ProviderCalDAV, "/cal/", "", domain.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewConnectedCalendar(tt.hostID, tt.provider, tt.calendarID, tt.calName, now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, sharedDomain.ErrInvalidInput)
		})
	}
}

func TestConnectedCalendar_Flags(t *testing.T) {
	cal := newCalendar(t)
	cal.ClearDomainEvents()
	later := now.Add(time.Hour)

	cal.SetPushTarget(true, later)
	cal.SetPushTarget(true, later)
	assert.True(t, cal.ReceivesBookings())
	assert.Equal(t, later, cal.UpdatedAt())

	cal.SetEnabled(false, later)
	assert.False(t, cal.ConsultForBusyTime())
	assert.False(t, cal.ReceivesBookings())

	cal.SetEnabled(true, later)
	cal.SetBusySource(false, later)
	assert.False(t, cal.ConsultForBusyTime())
	assert.True(t, cal.ReceivesBookings())

	var changes []string
	for _, e := range cal.DomainEvents() {
		updated, ok := e.(*domain.CalendarUpdated)
		require.True(t, ok)
		changes = append(changes, updated.Changes...)
	}
	assert.Equal(t, []string{"push_target", "enabled", "enabled", "busy_source"}, changes)
}

func TestConnectedCalendar_Rename(t *testing.T) {
	cal := newCalendar(t)

	require.NoError(t, cal.Rename("Personal", now))
	assert.Equal(t, "Personal", cal.Name())
	assert.ErrorIs(t, cal.Rename(" ", now), domain.ErrEmptyName)
}

func TestConnectedCalendar_Config(t *testing.T) {
	cal := newCalendar(t)

	cal.SetConfig(domain.ConfigCalDAVURL, "https://dav.example.com", now)
	cal.SetConfig(domain.ConfigCalDAVUsername, "ada", now)

	assert.Equal(t, "https://dav.example.com", cal.CalDAVURL())
	assert.Equal(t, "ada", cal.CalDAVUsername())

	cfg := cal.Config()
	cfg[domain.ConfigCalDAVURL] = "mutated"
	assert.Equal(t, "https://dav.example.com", cal.CalDAVURL())

	restored := domain.RehydrateConnectedCalendar(
		cal.ID(), cal.HostID(), cal.Provider(), cal.CalendarID(), cal.Name(),
		true, true, false, cal.ConfigJSON(), []byte("sealed"), now, now, 3,
	)
	assert.Equal(t, "ada", restored.CalDAVUsername())
	assert.Equal(t, []byte("sealed"), restored.Credentials())
	assert.Equal(t, 3, restored.Version())
	assert.Empty(t, restored.DomainEvents())
}

func TestConnectedCalendar_MarkDisconnected(t *testing.T) {
	cal := newCalendar(t)
	cal.ClearDomainEvents()

	cal.MarkDisconnected(now)

	events := cal.DomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.RoutingKeyCalendarDisconnected, events[0].RoutingKey())
}
