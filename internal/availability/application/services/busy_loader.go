package services

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

// BusyLoader gathers everything that blocks an event type's resource:
// footprints of live bookings and busy time from the host's calendars.
type BusyLoader struct {
	booked    domain.BookedTime
	sources   domain.SourceProvider
	collector *BusyCollector
}

// NewBusyLoader creates a loader. sources may be nil when no calendars are
// connected.
func NewBusyLoader(booked domain.BookedTime, sources domain.SourceProvider, collector *BusyCollector) *BusyLoader {
	return &BusyLoader{booked: booked, sources: sources, collector: collector}
}

// Load returns busy time around [from, to), widened by the event type's
// buffers so footprints at the edges are checked too. Booking store errors
// fail the load; calendar failures become warnings.
func (l *BusyLoader) Load(ctx context.Context, et *domain.EventType, from, to time.Time) (BusyResult, error) {
	start := from.Add(-et.BufferBefore())
	end := to.Add(et.BufferAfter())

	booked, err := l.booked.ListBusy(ctx, et.ResourceKey(), start, end)
	if err != nil {
		return BusyResult{}, fmt.Errorf("list booked time: %w", err)
	}

	var sources []domain.BusyTimeSource
	if l.sources != nil {
		sources, err = l.sources.SourcesFor(ctx, et.HostID())
		if err != nil {
			return BusyResult{}, fmt.Errorf("resolve busy-time sources: %w", err)
		}
	}

	result := l.collector.Collect(ctx, sources, start, end)
	result.Busy = append(booked, result.Busy...)
	return result, nil
}

// SlotVerifier re-checks a single requested slot before it is reserved.
type SlotVerifier struct {
	schedules domain.ScheduleRepository
	busy      *BusyLoader
}

// NewSlotVerifier creates a verifier.
func NewSlotVerifier(schedules domain.ScheduleRepository, busy *BusyLoader) *SlotVerifier {
	return &SlotVerifier{schedules: schedules, busy: busy}
}

// Verify checks slot against the event type's schedule and current busy
// time. Warnings from degraded sources are returned alongside.
func (v *SlotVerifier) Verify(
	ctx context.Context,
	et *domain.EventType,
	slot domain.CandidateSlot,
	now time.Time,
	checkWindow bool,
) ([]SourceWarning, error) {
	schedule, err := v.schedules.FindByID(ctx, et.ScheduleID())
	if err != nil {
		return nil, err
	}
	busy, err := v.busy.Load(ctx, et, slot.Start, slot.End)
	if err != nil {
		return nil, err
	}
	req := SlotRequest{
		Schedule:  schedule,
		EventType: et,
		Busy:      domain.Intervals(busy.Busy),
		Now:       now,
	}
	return busy.Warnings, VerifySlot(req, slot, checkWindow)
}
