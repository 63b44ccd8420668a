package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

type bookingCreateInput struct {
	EventTypeID      string `json:"event_type_id" jsonschema:"required"`
	Start            string `json:"start" jsonschema:"required"`
	AttendeeName     string `json:"attendee_name" jsonschema:"required"`
	AttendeeEmail    string `json:"attendee_email" jsonschema:"required"`
	AttendeeTimeZone string `json:"attendee_time_zone,omitempty"`
	RepeatCount      int    `json:"repeat_count,omitempty"`
	RepeatUntil      string `json:"repeat_until,omitempty"`
}

type bookingIDInput struct {
	BookingID string `json:"booking_id" jsonschema:"required"`
	Reason    string `json:"reason,omitempty"`
}

type bookingListInput struct {
	EventTypeID string `json:"event_type_id" jsonschema:"required"`
	From        string `json:"from" jsonschema:"required"`
	To          string `json:"to" jsonschema:"required"`
	LiveOnly    bool   `json:"live_only,omitempty"`
}

type bookingCreateOutput struct {
	Status   string                       `json:"status"`
	Reason   string                       `json:"reason,omitempty"`
	Booking  *bookingQueries.BookingView  `json:"booking,omitempty"`
	GroupID  string                       `json:"group_id,omitempty"`
	Booked   []bookingQueries.BookingView `json:"booked,omitempty"`
	Failures []occurrenceFailureOutput    `json:"failures,omitempty"`
	Warnings []warningOutput              `json:"warnings,omitempty"`
}

type occurrenceFailureOutput struct {
	Index int                        `json:"index"`
	Slot  availability.CandidateSlot `json:"slot"`
	Error string                     `json:"error"`
}

const (
	outcomeBooked   = "booked"
	outcomePartial  = "partial"
	outcomeRejected = "rejected"
)

func registerBookingTools(srv *mcp.Server, deps ToolDependencies) {
	srv.Tool("booking.create").
		Description("Book a slot for an attendee, optionally repeating it on the event type's recurrence").
		Handler(func(ctx context.Context, input bookingCreateInput) (*bookingCreateOutput, error) {
			ctx = toolContext(ctx, "booking.create")
			return createBooking(ctx, deps.CreateBooking, input)
		})

	srv.Tool("booking.cancel").
		Description("Cancel a booking").
		Handler(func(ctx context.Context, input bookingIDInput) (*bookingQueries.BookingView, error) {
			ctx = toolContext(ctx, "booking.cancel")
			if deps.CancelBooking == nil {
				return nil, errors.New("booking cancellation is not configured")
			}
			id, err := parseUUID(input.BookingID)
			if err != nil {
				return nil, err
			}
			return view(deps.CancelBooking.Handle(ctx, commands.CancelBookingCommand{BookingID: id, Reason: input.Reason}))
		})

	srv.Tool("booking.confirm").
		Description("Confirm a booking that is waiting for host confirmation").
		Handler(func(ctx context.Context, input bookingIDInput) (*bookingQueries.BookingView, error) {
			ctx = toolContext(ctx, "booking.confirm")
			if deps.ConfirmBooking == nil {
				return nil, errors.New("booking confirmation is not configured")
			}
			id, err := parseUUID(input.BookingID)
			if err != nil {
				return nil, err
			}
			return view(deps.ConfirmBooking.Handle(ctx, commands.ConfirmBookingCommand{BookingID: id}))
		})

	srv.Tool("booking.list").
		Description("List bookings of an event type in a date range").
		Handler(func(ctx context.Context, input bookingListInput) ([]bookingQueries.BookingView, error) {
			ctx = toolContext(ctx, "booking.list")
			if deps.ListBookings == nil {
				return nil, errors.New("booking listing is not configured")
			}
			id, err := parseUUID(input.EventTypeID)
			if err != nil {
				return nil, err
			}
			from, to, err := parseRange(input.From, input.To)
			if err != nil {
				return nil, err
			}
			return deps.ListBookings.Handle(ctx, bookingQueries.ListBookingsQuery{
				EventTypeID: id,
				From:        from,
				To:          to,
				LiveOnly:    input.LiveOnly,
			})
		})
}

// createBooking reports a rejected slot as an outcome rather than a tool
// error so the caller can pick another slot.
func createBooking(ctx context.Context, creator BookingCreator, input bookingCreateInput) (*bookingCreateOutput, error) {
	if creator == nil {
		return nil, errors.New("booking creation is not configured")
	}
	eventTypeID, err := parseUUID(input.EventTypeID)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start, use RFC 3339: %w", err)
	}

	cmd := commands.CreateBookingCommand{
		EventTypeID: eventTypeID,
		SlotStart:   start,
		Attendee: bookingDomain.Attendee{
			Name:     input.AttendeeName,
			Email:    input.AttendeeEmail,
			TimeZone: input.AttendeeTimeZone,
		},
	}
	if input.RepeatCount > 0 || input.RepeatUntil != "" {
		spec := &services.RecurrenceSpec{Count: input.RepeatCount}
		if input.RepeatUntil != "" {
			until, err := parseBound(input.RepeatUntil)
			if err != nil {
				return nil, fmt.Errorf("invalid repeat_until: %w", err)
			}
			spec.Until = until
		}
		cmd.Recurrence = spec
	}

	result, err := creator.Handle(ctx, cmd)
	var partial *commands.PartialRecurrenceFailure
	switch {
	case errors.As(err, &partial) && result != nil:
		out := createOutput(result)
		out.Status = outcomePartial
		return out, nil
	case err != nil:
		if rejected, ok := bookingDomain.AsRejected(err); ok {
			return &bookingCreateOutput{Status: outcomeRejected, Reason: rejected.Reason}, nil
		}
		return nil, err
	}
	out := createOutput(result)
	out.Status = outcomeBooked
	return out, nil
}

func createOutput(result *commands.CreateBookingResult) *bookingCreateOutput {
	out := &bookingCreateOutput{}
	if result.Booking != nil {
		v := bookingQueries.NewBookingView(result.Booking)
		out.Booking = &v
	}
	if r := result.Recurrence; r != nil {
		out.GroupID = r.GroupID.String()
		for _, b := range r.Booked {
			out.Booked = append(out.Booked, bookingQueries.NewBookingView(b))
		}
		for _, f := range r.Failures {
			msg := f.Err.Error()
			if rejected, ok := bookingDomain.AsRejected(f.Err); ok {
				msg = rejected.Reason
			}
			out.Failures = append(out.Failures, occurrenceFailureOutput{Index: f.Index, Slot: f.Slot, Error: msg})
		}
	}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, warningOutput{Source: w.Source, Error: w.Err.Error()})
	}
	return out
}

func view(b *bookingDomain.Booking, err error) (*bookingQueries.BookingView, error) {
	if err != nil {
		return nil, err
	}
	v := bookingQueries.NewBookingView(b)
	return &v, nil
}
