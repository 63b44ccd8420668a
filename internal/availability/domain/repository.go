package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository persists schedules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *Schedule) error
	FindByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	FindByHost(ctx context.Context, hostID uuid.UUID) ([]*Schedule, error)
}

// EventTypeRepository persists event types.
type EventTypeRepository interface {
	Save(ctx context.Context, eventType *EventType) error
	FindByID(ctx context.Context, id uuid.UUID) (*EventType, error)
	FindBySlug(ctx context.Context, hostID uuid.UUID, slug string) (*EventType, error)
	FindByHost(ctx context.Context, hostID uuid.UUID) ([]*EventType, error)
}

// BookedTime lists the footprints of live bookings on a resource. It is
// authoritative: errors fail the computation rather than degrade it.
type BookedTime interface {
	ListBusy(ctx context.Context, resourceKey string, start, end time.Time) ([]BusyInterval, error)
}

// SourceProvider returns the busy-time sources connected for a host.
type SourceProvider interface {
	SourcesFor(ctx context.Context, hostID uuid.UUID) ([]BusyTimeSource, error)
}
