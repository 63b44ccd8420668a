package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

const minutesPerWeek = 7 * MinutesPerDay

// LocalRange is a wall-clock range in the schedule's reference zone. An
// End at or before Start continues past midnight into the next day.
type LocalRange struct {
	Start ClockTime
	End   ClockTime
}

// CrossesMidnight reports whether the range ends on the following day.
func (r LocalRange) CrossesMidnight() bool { return r.End <= r.Start }

// Minutes returns the length of the range.
func (r LocalRange) Minutes() int {
	if r.CrossesMidnight() {
		return int(r.End) + MinutesPerDay - int(r.Start)
	}
	return int(r.End - r.Start)
}

func (r LocalRange) validate() error {
	if r.Start < 0 || r.Start >= MinutesPerDay || r.End < 0 || r.End > MinutesPerDay {
		return fmt.Errorf("%w: %s-%s out of bounds", ErrInvalidRule, r.Start, r.End)
	}
	if r.Start == r.End {
		return fmt.Errorf("%w: %s-%s is empty", ErrInvalidRule, r.Start, r.End)
	}
	return nil
}

// on expands the range to absolute instants for reference date d.
func (r LocalRange) on(d Date, loc *time.Location) Interval {
	end := d
	if r.CrossesMidnight() {
		end = d.AddDays(1)
	}
	return Interval{Start: d.At(r.Start, loc), End: end.At(r.End, loc)}
}

func (r LocalRange) String() string { return r.Start.String() + "-" + r.End.String() }

// WeeklyRule makes a range available every week on Weekday.
type WeeklyRule struct {
	Weekday time.Weekday
	LocalRange
}

func (w WeeklyRule) String() string {
	return w.Weekday.String() + " " + w.LocalRange.String()
}

// weekSpans maps the rule onto minutes of the week, splitting at the
// Saturday/Sunday wrap.
func (w WeeklyRule) weekSpans() [][2]int {
	start := int(w.Weekday)*MinutesPerDay + int(w.Start)
	end := start + w.Minutes()
	if end <= minutesPerWeek {
		return [][2]int{{start, end}}
	}
	return [][2]int{{start, minutesPerWeek}, {0, end - minutesPerWeek}}
}

// DateOverride replaces the weekly rules for one reference-zone date. No
// ranges means the date is unavailable.
type DateOverride struct {
	Date   Date
	Ranges []LocalRange
}

// Blocked reports whether the override removes all availability.
func (o DateOverride) Blocked() bool { return len(o.Ranges) == 0 }

// Schedule is a host's recurring weekly availability in a reference zone,
// with per-date overrides.
type Schedule struct {
	sharedDomain.BaseAggregateRoot
	hostID    uuid.UUID
	name      string
	location  *time.Location
	rules     []WeeklyRule
	overrides map[Date][]LocalRange
}

// NewSchedule creates an empty schedule in the named IANA zone.
func NewSchedule(hostID uuid.UUID, name, timeZone string, now time.Time) (*Schedule, error) {
	if hostID == uuid.Nil {
		return nil, ErrEmptyHostID
	}
	loc, err := LoadLocation(timeZone)
	if err != nil {
		return nil, err
	}
	return &Schedule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		hostID:            hostID,
		name:              strings.TrimSpace(name),
		location:          loc,
		overrides:         make(map[Date][]LocalRange),
	}, nil
}

// RehydrateSchedule rebuilds a schedule from storage, re-checking the rule
// invariants.
func RehydrateSchedule(
	id, hostID uuid.UUID,
	name, timeZone string,
	rules []WeeklyRule,
	overrides []DateOverride,
	createdAt, updatedAt time.Time,
	version int,
) (*Schedule, error) {
	loc, err := LoadLocation(timeZone)
	if err != nil {
		return nil, err
	}
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	s := &Schedule{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		hostID:    hostID,
		name:      name,
		location:  loc,
		rules:     slices.Clone(rules),
		overrides: make(map[Date][]LocalRange, len(overrides)),
	}
	for _, o := range overrides {
		s.overrides[o.Date] = slices.Clone(o.Ranges)
	}
	return s, nil
}

// Getters
func (s *Schedule) HostID() uuid.UUID        { return s.hostID }
func (s *Schedule) Name() string             { return s.name }
func (s *Schedule) Location() *time.Location { return s.location }
func (s *Schedule) TimeZone() string         { return s.location.String() }
func (s *Schedule) Rules() []WeeklyRule      { return slices.Clone(s.rules) }

// Overrides returns the overrides ordered by date.
func (s *Schedule) Overrides() []DateOverride {
	out := make([]DateOverride, 0, len(s.overrides))
	for d, ranges := range s.overrides {
		out = append(out, DateOverride{Date: d, Ranges: slices.Clone(ranges)})
	}
	slices.SortFunc(out, func(a, b DateOverride) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case b.Date.Before(a.Date):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Override returns the override for d, if any.
func (s *Schedule) Override(d Date) (DateOverride, bool) {
	ranges, ok := s.overrides[d]
	if !ok {
		return DateOverride{}, false
	}
	return DateOverride{Date: d, Ranges: slices.Clone(ranges)}, true
}

// Rename changes the display name.
func (s *Schedule) Rename(name string, now time.Time) {
	s.name = strings.TrimSpace(name)
	s.Touch(now)
}

// SetTimeZone moves the schedule to another reference zone. Rules keep
// their wall-clock times.
func (s *Schedule) SetTimeZone(timeZone string, now time.Time) error {
	loc, err := LoadLocation(timeZone)
	if err != nil {
		return err
	}
	s.location = loc
	s.Touch(now)
	return nil
}

// AddRule adds one weekly rule.
func (s *Schedule) AddRule(rule WeeklyRule, now time.Time) error {
	return s.ReplaceRules(append(slices.Clone(s.rules), rule), now)
}

// ReplaceRules swaps the whole rule set after validating it.
func (s *Schedule) ReplaceRules(rules []WeeklyRule, now time.Time) error {
	if err := validateRules(rules); err != nil {
		return err
	}
	sorted := slices.Clone(rules)
	slices.SortFunc(sorted, func(a, b WeeklyRule) int {
		return a.weekSpans()[0][0] - b.weekSpans()[0][0]
	})
	s.rules = sorted
	s.Touch(now)
	return nil
}

// SetOverride replaces availability on date d with ranges.
func (s *Schedule) SetOverride(d Date, ranges []LocalRange, now time.Time) error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if err := validateRanges(ranges); err != nil {
		return err
	}
	s.overrides[d] = slices.Clone(ranges)
	s.Touch(now)
	return nil
}

// BlockDate makes date d unavailable.
func (s *Schedule) BlockDate(d Date, now time.Time) error {
	return s.SetOverride(d, nil, now)
}

// RemoveOverride restores the weekly rules on d.
func (s *Schedule) RemoveOverride(d Date, now time.Time) bool {
	if _, ok := s.overrides[d]; !ok {
		return false
	}
	delete(s.overrides, d)
	s.Touch(now)
	return true
}

// rulesOn returns the weekly ranges that start on reference date d.
func (s *Schedule) rulesOn(d Date) []LocalRange {
	var out []LocalRange
	wd := d.Weekday()
	for _, r := range s.rules {
		if r.Weekday == wd {
			out = append(out, r.LocalRange)
		}
	}
	return out
}

// expand returns the absolute intervals for reference dates first..last.
// An overridden date takes only its override ranges: weekly ranges from
// neighbouring dates that cross midnight are cut at the overridden day.
func (s *Schedule) expand(first, last Date) []Interval {
	var weekly, overridden, masked []Interval
	// One extra day each side catches rules spilling into an overridden
	// date at the edge of the range.
	for d := first.AddDays(-1); !last.AddDays(1).Before(d); d = d.AddDays(1) {
		ranges, ok := s.overrides[d]
		if ok {
			masked = append(masked, Interval{Start: d.Start(s.location), End: d.AddDays(1).Start(s.location)})
		}
		if d.Before(first) || last.Before(d) {
			continue
		}
		if ok {
			for _, r := range ranges {
				overridden = append(overridden, r.on(d, s.location))
			}
			continue
		}
		for _, r := range s.rulesOn(d) {
			weekly = append(weekly, r.on(d, s.location))
		}
	}
	if len(masked) > 0 {
		weekly = Subtract(weekly, masked)
	}
	return append(weekly, overridden...)
}

// AvailableIntervals returns the ordered availability that falls on
// calendar date d as seen in loc. Rules are evaluated in the reference
// zone; a range that crosses midnight in loc is split between the two
// dates it touches.
func (s *Schedule) AvailableIntervals(d Date, loc *time.Location) []Interval {
	if loc == nil {
		loc = s.location
	}
	window := Interval{Start: d.Start(loc), End: d.AddDays(1).Start(loc)}

	// Zone offsets differ by at most 26h, so reference dates two days
	// either side cover every range that can reach the window.
	var out []Interval
	for _, iv := range s.expand(d.AddDays(-2), d.AddDays(2)) {
		if clipped, ok := iv.Intersect(window); ok {
			out = append(out, clipped.In(loc))
		}
	}
	return Normalize(out)
}

// AvailableBetween returns merged availability inside [from, to).
func (s *Schedule) AvailableBetween(from, to time.Time) []Interval {
	window := Interval{Start: from, End: to}
	if window.IsEmpty() {
		return nil
	}
	first := DateOf(from.In(s.location)).AddDays(-1)
	last := DateOf(to.In(s.location))

	var out []Interval
	for _, iv := range s.expand(first, last) {
		if clipped, ok := iv.Intersect(window); ok {
			out = append(out, clipped)
		}
	}
	return Normalize(out)
}

// Contains reports whether iv lies inside one continuous stretch of
// availability.
func (s *Schedule) Contains(iv Interval) bool {
	for _, free := range s.AvailableBetween(iv.Start, iv.End) {
		if free.Contains(iv) {
			return true
		}
	}
	return false
}

func validateRanges(ranges []LocalRange) error {
	rules := make([]WeeklyRule, len(ranges))
	for i, r := range ranges {
		rules[i] = WeeklyRule{Weekday: time.Sunday, LocalRange: r}
	}
	return validateRules(rules)
}

// validateRules checks bounds and pairwise overlap in minutes-of-week, so
// a rule crossing midnight also conflicts with early rules on the next day.
func validateRules(rules []WeeklyRule) error {
	type span struct {
		start, end int
		rule       WeeklyRule
	}
	var spans []span
	for _, r := range rules {
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidRule, r.Weekday)
		}
		if err := r.validate(); err != nil {
			return err
		}
		for _, ws := range r.weekSpans() {
			spans = append(spans, span{start: ws[0], end: ws[1], rule: r})
		}
	}
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingRules, spans[i-1].rule, spans[i].rule)
		}
	}
	return nil
}
