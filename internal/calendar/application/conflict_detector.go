package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// HostBookings lists a host's bookings that overlap [from, to).
type HostBookings interface {
	ListByHost(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]*bookingDomain.Booking, error)
}

// Conflict is external busy time overlapping the blocked range of a live
// booking.
type Conflict struct {
	Booking *bookingDomain.Booking
	Source  string
	Busy    availability.Interval
}

// SkippedSource is a calendar that could not be checked.
type SkippedSource struct {
	Source string
	Err    error
}

// ConflictReport describes the outcome of a conflict check.
type ConflictReport struct {
	Checked   int
	Conflicts []Conflict
	Skipped   []SkippedSource
}

// HasConflicts reports whether any booking clashes with external time.
func (r *ConflictReport) HasConflicts() bool { return len(r.Conflicts) > 0 }

// ConflictDetector finds live bookings that clash with events created in
// the host's calendars after the booking was committed.
//
// Calendars that also receive pushed bookings report the booking itself as
// busy, so for those only time outside the booking's own [start, end) is
// considered, which leaves the buffers.
type ConflictDetector struct {
	calendars *Calendars
	bookings  HostBookings
	logger    *slog.Logger
}

// NewConflictDetector creates a new conflict detector.
func NewConflictDetector(calendars *Calendars, bookings HostBookings, logger *slog.Logger) *ConflictDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictDetector{
		calendars: calendars,
		bookings:  bookings,
		logger:    logger,
	}
}

// Detect checks the host's live bookings in [from, to) against every
// busy-source calendar. A failing calendar is skipped and reported.
func (d *ConflictDetector) Detect(ctx context.Context, hostID uuid.UUID, from, to time.Time) (*ConflictReport, error) {
	if hostID == uuid.Nil {
		return nil, fmt.Errorf("%w: host id is required", sharedDomain.ErrInvalidInput)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: range end must be after start", sharedDomain.ErrInvalidInput)
	}

	all, err := d.bookings.ListByHost(ctx, hostID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	var (
		live   []*bookingDomain.Booking
		own    []availability.Interval
		window availability.Interval
	)
	for _, b := range all {
		if !b.Status().Live() {
			continue
		}
		live = append(live, b)
		own = append(own, availability.Interval{Start: b.Start(), End: b.End()})
		blocked := b.Blocked()
		if window.IsEmpty() || blocked.Start.Before(window.Start) {
			window.Start = blocked.Start
		}
		if blocked.End.After(window.End) {
			window.End = blocked.End
		}
	}

	report := &ConflictReport{Checked: len(live)}
	if len(live) == 0 {
		return report, nil
	}

	sources, err := d.calendars.busySources(ctx, hostID)
	if err != nil {
		return nil, err
	}
	for _, hs := range sources {
		name := hs.source.Name()
		busy, err := hs.source.BusyBetween(ctx, window.Start, window.End)
		if err != nil {
			d.logger.WarnContext(ctx, "conflict check skipped calendar",
				"host_id", hostID,
				"source", name,
				"error", err,
			)
			report.Skipped = append(report.Skipped, SkippedSource{Source: name, Err: err})
			continue
		}

		external := availability.Normalize(availability.Intervals(busy))
		if hs.pushTarget {
			external = availability.Subtract(external, own)
		}
		for _, b := range live {
			for _, iv := range external {
				clash, ok := iv.Intersect(b.Blocked())
				if !ok {
					continue
				}
				report.Conflicts = append(report.Conflicts, Conflict{Booking: b, Source: name, Busy: clash})
			}
		}
	}

	slices.SortStableFunc(report.Conflicts, func(a, b Conflict) int {
		return a.Booking.Start().Compare(b.Booking.Start())
	})
	for _, c := range report.Conflicts {
		d.logger.WarnContext(ctx, "booking conflicts with external calendar",
			"booking_id", c.Booking.ID(),
			"source", c.Source,
			"busy_start", c.Busy.Start,
			"busy_end", c.Busy.End,
		)
	}
	return report, nil
}
