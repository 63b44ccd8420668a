package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// WriterProvider resolves the calendars a host's bookings are pushed to.
type WriterProvider interface {
	WritersFor(ctx context.Context, hostID uuid.UUID) ([]calendarApp.EventWriter, error)
}

// EventTypeFinder looks up the event type a booking was made for.
type EventTypeFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*availability.EventType, error)
}

// CalendarPushSubscriber writes accepted bookings into the host's push
// calendars. It runs after commit, so a failed push never affects the
// booking; the returned error makes the delivery retry instead.
type CalendarPushSubscriber struct {
	writers    WriterProvider
	eventTypes EventTypeFinder
	logger     *slog.Logger
	metrics    observability.Metrics
}

// NewCalendarPushSubscriber creates the subscriber.
func NewCalendarPushSubscriber(writers WriterProvider, eventTypes EventTypeFinder, logger *slog.Logger, metrics observability.Metrics) *CalendarPushSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &CalendarPushSubscriber{
		writers:    writers,
		eventTypes: eventTypes,
		logger:     logger,
		metrics:    metrics,
	}
}

var _ eventbus.Handler = (*CalendarPushSubscriber)(nil)

func (s *CalendarPushSubscriber) RoutingKeys() []string {
	return []string{bookingDomain.RoutingKeyAccepted}
}

// Handle pushes the booking to every writer, even when some fail.
func (s *CalendarPushSubscriber) Handle(ctx context.Context, env *eventbus.Envelope) error {
	var booking bookingDomain.BookingPayload
	if err := env.DecodePayload(&booking); err != nil {
		return fmt.Errorf("decode booking payload: %w", err)
	}
	if booking.BookingID == uuid.Nil {
		booking.BookingID = env.AggregateID
	}

	writers, resolveErr := s.writers.WritersFor(ctx, booking.HostID)
	if resolveErr != nil {
		s.logger.WarnContext(ctx, "some push calendars unavailable",
			"booking_id", booking.BookingID,
			"host_id", booking.HostID,
			"error", resolveErr,
		)
	}
	if len(writers) == 0 {
		return resolveErr
	}

	event := s.calendarEvent(ctx, booking)
	errs := []error{resolveErr}
	for _, w := range writers {
		externalID, err := w.CreateEvent(ctx, event)
		if err != nil {
			s.metrics.Counter(observability.MetricCalendarPushFailures, 1, observability.T("calendar", w.Name()))
			s.logger.WarnContext(ctx, "calendar push failed",
				"booking_id", booking.BookingID,
				"calendar", w.Name(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		s.metrics.Counter(observability.MetricCalendarPushed, 1, observability.T("calendar", w.Name()))
		s.logger.InfoContext(ctx, "booking pushed to calendar",
			"booking_id", booking.BookingID,
			"calendar", w.Name(),
			"external_id", externalID,
		)
	}
	return errors.Join(errs...)
}

func (s *CalendarPushSubscriber) calendarEvent(ctx context.Context, b bookingDomain.BookingPayload) calendarApp.CalendarEvent {
	title := "Booking"
	if s.eventTypes != nil {
		if et, err := s.eventTypes.FindByID(ctx, b.EventTypeID); err == nil {
			title = et.Title()
		}
	}
	summary := title
	if b.Attendee.Name != "" {
		summary = title + " with " + b.Attendee.Name
	}
	return calendarApp.CalendarEvent{
		BookingID:     b.BookingID,
		Summary:       summary,
		Description:   fmt.Sprintf("Booked by %s <%s>", b.Attendee.Name, b.Attendee.Email),
		Start:         b.Start,
		End:           b.End,
		AttendeeName:  b.Attendee.Name,
		AttendeeEmail: b.Attendee.Email,
	}
}
