package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

const (
	dateLayout  = "2006-01-02"
	slotLayout  = "Mon 2006-01-02 15:04"
	clockLayout = "15:04"
)

var errNotConnected = errors.New("application not initialized - database connection required")

func parseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", value, err)
	}
	return id, nil
}

// parseBound accepts an RFC 3339 instant or a date, which is read as
// midnight in loc.
func parseBound(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", name)
	}
	return loc, nil
}

func printWarnings(w io.Writer, warnings []availabilityServices.SourceWarning) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s unavailable: %v\n", warning.Source, warning.Err)
	}
}

func printBooking(w io.Writer, b *bookingDomain.Booking, loc *time.Location) {
	printBookingView(w, bookingQueries.NewBookingView(b), loc)
}

func printBookingView(w io.Writer, v bookingQueries.BookingView, loc *time.Location) {
	fmt.Fprintf(w, "%s  %s-%s  %-9s  %s <%s>\n",
		v.ID,
		v.Start.In(loc).Format(slotLayout),
		v.End.In(loc).Format(clockLayout),
		v.Status,
		v.Attendee.Name,
		v.Attendee.Email,
	)
}

// rejectionMessage keeps the engine's reason for rejected reservations.
func rejectionMessage(err error) string {
	if rejected, ok := bookingDomain.AsRejected(err); ok {
		return rejected.Reason
	}
	return err.Error()
}
