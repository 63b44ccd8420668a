package domain

import (
	"context"
	"time"
)

// CandidateSlot is a bookable [Start, End) range that met every constraint
// when it was generated. It is never persisted.
type CandidateSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s CandidateSlot) Interval() Interval { return Interval{Start: s.Start, End: s.End} }

// In converts the slot for display in loc.
func (s CandidateSlot) In(loc *time.Location) CandidateSlot {
	return CandidateSlot{Start: s.Start.In(loc), End: s.End.In(loc)}
}

// Equal compares instants, ignoring display location.
func (s CandidateSlot) Equal(o CandidateSlot) bool {
	return s.Start.Equal(o.Start) && s.End.Equal(o.End)
}

// BusyInterval is time a resource is unavailable, with the name of the
// source that reported it.
type BusyInterval struct {
	Interval
	Source string
}

// Intervals drops the source names.
func Intervals(busy []BusyInterval) []Interval {
	out := make([]Interval, len(busy))
	for i, b := range busy {
		out[i] = b.Interval
	}
	return out
}

// BusyTimeSource reports busy time from one calendar. Implementations must
// be safe for concurrent calls over disjoint ranges.
type BusyTimeSource interface {
	Name() string
	BusyBetween(ctx context.Context, start, end time.Time) ([]BusyInterval, error)
}
