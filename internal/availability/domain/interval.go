package domain

import (
	"fmt"
	"slices"
	"time"
)

// Interval is a half-open range of absolute instants [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval returns [start, end) or ErrInvalidRange when start is not
// before end.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s is not before %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }
func (i Interval) IsEmpty() bool           { return !i.Start.Before(i.End) }

// Overlaps reports whether the two ranges share at least one instant.
// Touching ranges do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Intersect returns the common part of i and o.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	start, end := i.Start, i.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Expand widens the interval by before and after.
func (i Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// In returns the same instants displayed in loc.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Normalize sorts intervals and merges those that overlap or touch. Empty
// intervals are dropped. The input is not modified.
func Normalize(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := sorted[:0]
	for _, iv := range sorted {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract removes every busy range from free. The result is sorted and
// disjoint.
func Subtract(free, busy []Interval) []Interval {
	free = Normalize(free)
	busy = Normalize(busy)

	var out []Interval
	j := 0
	for _, f := range free {
		cur := f.Start
		for j < len(busy) && !busy[j].End.After(f.Start) {
			j++
		}
		for k := j; k < len(busy) && busy[k].Start.Before(f.End); k++ {
			if busy[k].Start.After(cur) {
				out = append(out, Interval{Start: cur, End: busy[k].Start})
			}
			if busy[k].End.After(cur) {
				cur = busy[k].End
			}
		}
		if cur.Before(f.End) {
			out = append(out, Interval{Start: cur, End: f.End})
		}
	}
	return out
}

// OverlapsAny reports whether iv overlaps any interval in sorted, which
// must be normalized.
func OverlapsAny(iv Interval, sorted []Interval) bool {
	idx, _ := slices.BinarySearchFunc(sorted, iv.Start, func(e Interval, t time.Time) int {
		if !e.End.After(t) {
			return -1
		}
		return 1
	})
	return idx < len(sorted) && sorted[idx].Start.Before(iv.End)
}
