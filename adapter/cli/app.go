package cli

import (
	"context"
	"time"

	"github.com/google/uuid"

	availabilityCommands "github.com/felixgeelhaar/slotwise/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	bookingCommands "github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// SlotsComputer computes bookable slots.
type SlotsComputer interface {
	Handle(ctx context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error)
}

// BookingCreator creates bookings.
type BookingCreator interface {
	Handle(ctx context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error)
}

// BookingCanceller cancels bookings.
type BookingCanceller interface {
	Handle(ctx context.Context, cmd bookingCommands.CancelBookingCommand) (*bookingDomain.Booking, error)
}

// BookingConfirmer confirms pending bookings.
type BookingConfirmer interface {
	Handle(ctx context.Context, cmd bookingCommands.ConfirmBookingCommand) (*bookingDomain.Booking, error)
}

// BookingDecliner declines pending bookings.
type BookingDecliner interface {
	Handle(ctx context.Context, cmd bookingCommands.DeclineBookingCommand) (*bookingDomain.Booking, error)
}

// BookingLister lists bookings of an event type.
type BookingLister interface {
	Handle(ctx context.Context, q bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error)
}

// ConflictDetector checks bookings against the host's calendars.
type ConflictDetector interface {
	Detect(ctx context.Context, hostID uuid.UUID, from, to time.Time) (*calendarApp.ConflictReport, error)
}

// ScheduleUpserter creates or replaces schedules.
type ScheduleUpserter interface {
	Handle(ctx context.Context, cmd availabilityCommands.UpsertScheduleCommand) (*availabilityCommands.UpsertScheduleResult, error)
}

// EventTypeUpserter creates or updates event types.
type EventTypeUpserter interface {
	Handle(ctx context.Context, cmd availabilityCommands.UpsertEventTypeCommand) (*availabilityCommands.UpsertEventTypeResult, error)
}

// Migrator applies and inspects schema migrations.
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
	Pending(ctx context.Context) (int, error)
}

// App holds the CLI application dependencies. Commands report a missing
// dependency instead of panicking, so a partially wired App is valid.
type App struct {
	ComputeSlots    SlotsComputer
	CreateBooking   BookingCreator
	CancelBooking   BookingCanceller
	ConfirmBooking  BookingConfirmer
	DeclineBooking  BookingDecliner
	ListBookings    BookingLister
	DetectConflicts ConflictDetector
	UpsertSchedule  ScheduleUpserter
	UpsertEventType EventTypeUpserter
	Migrator        Migrator
	Health          *observability.HealthRegistry
}

// Global app instance
var app *App

// SetApp sets the global app instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global app instance.
func GetApp() *App {
	return app
}
