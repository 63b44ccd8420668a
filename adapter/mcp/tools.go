package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

// SlotsComputer computes bookable slots.
type SlotsComputer interface {
	Handle(ctx context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error)
}

// BookingCreator creates bookings.
type BookingCreator interface {
	Handle(ctx context.Context, cmd commands.CreateBookingCommand) (*commands.CreateBookingResult, error)
}

// BookingCanceller cancels bookings.
type BookingCanceller interface {
	Handle(ctx context.Context, cmd commands.CancelBookingCommand) (*bookingDomain.Booking, error)
}

// BookingConfirmer confirms pending bookings.
type BookingConfirmer interface {
	Handle(ctx context.Context, cmd commands.ConfirmBookingCommand) (*bookingDomain.Booking, error)
}

// BookingLister lists bookings of an event type.
type BookingLister interface {
	Handle(ctx context.Context, q bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error)
}

// ToolDependencies provides handlers for MCP tools. Nil handlers make the
// matching tools report that they are unavailable.
type ToolDependencies struct {
	ComputeSlots   SlotsComputer
	CreateBooking  BookingCreator
	CancelBooking  BookingCanceller
	ConfirmBooking BookingConfirmer
	ListBookings   BookingLister
}

// RegisterTools registers the slot and booking tools.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}

	registerSlotTools(srv, deps)
	registerBookingTools(srv, deps)
	return nil
}
