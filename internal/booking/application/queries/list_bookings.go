package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// MaxListRange bounds one listing.
const MaxListRange = 366 * availability.Day

// ListBookingsQuery lists the bookings of an event type whose slot overlaps
// [From, To). GroupID, when set, lists one recurrence group instead.
type ListBookingsQuery struct {
	EventTypeID uuid.UUID
	GroupID     uuid.UUID
	From        time.Time
	To          time.Time
	// LiveOnly drops rejected and cancelled bookings.
	LiveOnly bool
}

// BookingView is the read model returned to transports.
type BookingView struct {
	ID                 uuid.UUID       `json:"id"`
	EventTypeID        uuid.UUID       `json:"event_type_id"`
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	Status             domain.Status   `json:"status"`
	Attendee           domain.Attendee `json:"attendee"`
	RecurrenceGroupID  *uuid.UUID      `json:"recurrence_group_id,omitempty"`
	OccurrenceIndex    int             `json:"occurrence_index"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

// NewBookingView converts a booking to its read model.
func NewBookingView(b *domain.Booking) BookingView {
	v := BookingView{
		ID:                 b.ID(),
		EventTypeID:        b.EventTypeID(),
		Start:              b.Start(),
		End:                b.End(),
		Status:             b.Status(),
		Attendee:           b.Attendee(),
		OccurrenceIndex:    b.OccurrenceIndex(),
		CancellationReason: b.CancellationReason(),
	}
	if g := b.RecurrenceGroupID(); g != uuid.Nil {
		v.RecurrenceGroupID = &g
	}
	return v
}

// ListBookingsHandler handles the ListBookingsQuery.
type ListBookingsHandler struct {
	bookings domain.Repository
}

// NewListBookingsHandler creates a new ListBookingsHandler.
func NewListBookingsHandler(bookings domain.Repository) *ListBookingsHandler {
	return &ListBookingsHandler{bookings: bookings}
}

func (h *ListBookingsHandler) Handle(ctx context.Context, query ListBookingsQuery) ([]BookingView, error) {
	var (
		list []*domain.Booking
		err  error
	)
	switch {
	case query.GroupID != uuid.Nil:
		list, err = h.bookings.ListByGroup(ctx, query.GroupID)
	case query.EventTypeID == uuid.Nil:
		return nil, fmt.Errorf("%w: event type id or group id is required", sharedDomain.ErrInvalidInput)
	case !query.From.Before(query.To):
		return nil, fmt.Errorf("%w: from must be before to", availability.ErrInvalidRange)
	case query.To.Sub(query.From) > MaxListRange:
		return nil, fmt.Errorf("%w: range exceeds %d days", availability.ErrInvalidRange, int(MaxListRange/availability.Day))
	default:
		list, err = h.bookings.ListByEventType(ctx, query.EventTypeID, query.From, query.To)
	}
	if err != nil {
		return nil, err
	}

	views := make([]BookingView, 0, len(list))
	for _, b := range list {
		if query.LiveOnly && !b.Status().Live() {
			continue
		}
		views = append(views, NewBookingView(b))
	}
	return views, nil
}
