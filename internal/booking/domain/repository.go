package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

// Repository is the booking store. ListBusy makes it an
// availability.BookedTime.
type Repository interface {
	availability.BookedTime

	// InsertIfFree writes b only when no live booking on the same resource
	// overlaps its blocked range. It returns ErrSlotTaken when one does and
	// ErrWriteConflict on transient contention.
	InsertIfFree(ctx context.Context, b *Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Update persists a status change.
	Update(ctx context.Context, b *Booking) error
	ListByEventType(ctx context.Context, eventTypeID uuid.UUID, from, to time.Time) ([]*Booking, error)
	ListByHost(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]*Booking, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*Booking, error)
}
