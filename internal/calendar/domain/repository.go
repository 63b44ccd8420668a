package domain

import (
	"context"

	"github.com/google/uuid"
)

// ConnectedCalendarRepository persists connected calendars.
type ConnectedCalendarRepository interface {
	// Save creates or updates a calendar, keyed by id.
	Save(ctx context.Context, calendar *ConnectedCalendar) error

	FindByID(ctx context.Context, id uuid.UUID) (*ConnectedCalendar, error)

	// FindByHostProviderAndCalendar returns ErrCalendarNotFound when the
	// host has no such connection.
	FindByHostProviderAndCalendar(ctx context.Context, hostID uuid.UUID, provider ProviderType, calendarID string) (*ConnectedCalendar, error)

	// FindByHost returns every calendar of the host, enabled or not.
	FindByHost(ctx context.Context, hostID uuid.UUID) ([]*ConnectedCalendar, error)

	Delete(ctx context.Context, id uuid.UUID) error
}
