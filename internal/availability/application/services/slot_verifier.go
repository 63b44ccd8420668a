package services

import (
	"fmt"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var (
	ErrTooSoon              = fmt.Errorf("%w: slot starts before the minimum notice", sharedDomain.ErrInvalidInput)
	ErrOutsideBookingWindow = fmt.Errorf("%w: slot is outside the booking window", sharedDomain.ErrInvalidInput)
	ErrOutsideAvailability  = fmt.Errorf("%w: slot is outside the host's availability", sharedDomain.ErrSlotUnavailable)
	ErrSlotBusy             = fmt.Errorf("%w: slot overlaps busy time", sharedDomain.ErrSlotUnavailable)
)

// CheckWindow verifies minimum notice and the booking window for a slot
// starting at slot.Start.
func CheckWindow(et *domain.EventType, slot domain.CandidateSlot, req SlotRequest) error {
	if slot.Start.Before(et.EarliestStart(req.Now)) {
		if slot.Start.Before(req.Now.Add(et.MinimumNotice())) {
			return ErrTooSoon
		}
		return ErrOutsideBookingWindow
	}
	if latest, ok := et.LatestStart(req.Now); ok && !slot.Start.Before(latest) {
		return ErrOutsideBookingWindow
	}
	return nil
}

// VerifySlot checks one slot against schedule availability and busy time.
// Notice and window rules are checked only when checkWindow is set, which
// recurring bookings use for their first occurrence alone.
func VerifySlot(req SlotRequest, slot domain.CandidateSlot, checkWindow bool) error {
	et := req.EventType
	if checkWindow {
		if err := CheckWindow(et, slot, req); err != nil {
			return err
		}
	}
	if !req.Schedule.Contains(slot.Interval()) {
		return fmt.Errorf("%w: %s", ErrOutsideAvailability, slot.Interval())
	}
	if domain.OverlapsAny(et.Footprint(slot), domain.Normalize(req.Busy)) {
		return fmt.Errorf("%w: %s", ErrSlotBusy, slot.Interval())
	}
	return nil
}
