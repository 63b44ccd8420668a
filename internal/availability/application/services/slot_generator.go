package services

import (
	"iter"
	"time"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

// SlotRequest holds every input of a slot computation. Nothing is read
// from the environment, so equal requests always produce equal slots.
type SlotRequest struct {
	Schedule  *domain.Schedule
	EventType *domain.EventType
	// Busy holds booking footprints and calendar busy time, in any order.
	Busy []domain.Interval
	From time.Time
	To   time.Time
	// Location is the requester's zone. Nil means the schedule's zone.
	Location *time.Location
	Now      time.Time
}

func (r SlotRequest) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return r.Schedule.Location()
}

// FreeIntervals returns schedule availability inside [From, To) with all
// busy time removed.
func FreeIntervals(req SlotRequest) []domain.Interval {
	window := domain.Interval{Start: req.From, End: req.To}
	if window.IsEmpty() {
		return nil
	}
	loc := req.location()

	var available []domain.Interval
	last := domain.DateOf(req.To.In(loc))
	for d := domain.DateOf(req.From.In(loc)); !last.Before(d); d = d.AddDays(1) {
		for _, iv := range req.Schedule.AvailableIntervals(d, loc) {
			if clipped, ok := iv.Intersect(window); ok {
				available = append(available, clipped)
			}
		}
	}
	return domain.Subtract(available, req.Busy)
}

// GenerateSlots lazily yields the bookable slots of req in start order.
// The sequence can be ranged over any number of times.
func GenerateSlots(req SlotRequest) iter.Seq[domain.CandidateSlot] {
	return func(yield func(domain.CandidateSlot) bool) {
		if req.Schedule == nil || req.EventType == nil {
			return
		}
		et := req.EventType
		loc := req.location()
		busy := domain.Normalize(req.Busy)
		step := et.Granularity()
		earliest := et.EarliestStart(req.Now)
		latest, bounded := et.LatestStart(req.Now)

		for _, free := range FreeIntervals(req) {
			for s := free.Start; !s.Add(et.Duration()).After(free.End); s = s.Add(step) {
				if bounded && !s.Before(latest) {
					return
				}
				if s.Before(earliest) {
					continue
				}
				slot := et.SlotAt(s)
				if domain.OverlapsAny(et.Footprint(slot), busy) {
					continue
				}
				if !yield(slot.In(loc)) {
					return
				}
			}
		}
	}
}
