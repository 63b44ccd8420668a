package services

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var ErrInvalidRecurrence = fmt.Errorf("%w: invalid recurrence", sharedDomain.ErrInvalidInput)

// RecurrenceSpec bounds a recurring request. Zero values mean "no bound".
type RecurrenceSpec struct {
	Count int       `json:"count,omitempty"`
	Until time.Time `json:"until,omitempty"`
}

// RecurrenceExpander turns a seed slot into its occurrences under the
// event type's recurrence policy.
type RecurrenceExpander struct {
	maxOccurrences int
}

// NewRecurrenceExpander caps every expansion at maxOccurrences. Zero keeps
// the policy's own limit.
func NewRecurrenceExpander(maxOccurrences int) *RecurrenceExpander {
	return &RecurrenceExpander{maxOccurrences: maxOccurrences}
}

// Expand returns the seed followed by its recurrences. Occurrences are
// computed on UTC instants, so every occurrence starts a whole number of
// periods after the seed in absolute time.
func (e *RecurrenceExpander) Expand(et *availability.EventType, seed availability.CandidateSlot, spec RecurrenceSpec) ([]availability.CandidateSlot, error) {
	if et == nil {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidRecurrence)
	}
	if !seed.Start.Before(seed.End) {
		return nil, fmt.Errorf("%w: empty seed slot", ErrInvalidRecurrence)
	}
	if spec.Count < 0 {
		return nil, fmt.Errorf("%w: negative count", ErrInvalidRecurrence)
	}
	if !spec.Until.IsZero() && spec.Until.Before(seed.Start) {
		return nil, fmt.Errorf("%w: until %s precedes the first occurrence", ErrInvalidRecurrence, spec.Until.Format(time.RFC3339))
	}

	policy := et.Recurrence()
	seed = availability.CandidateSlot{Start: seed.Start.UTC(), End: seed.End.UTC()}
	if !policy.Recurring() {
		return []availability.CandidateSlot{seed}, nil
	}
	if policy.Kind == availability.RecurrenceIndefinite && spec.Count == 0 && spec.Until.IsZero() {
		return nil, fmt.Errorf("%w: open-ended recurrence needs a count or an end date", ErrInvalidRecurrence)
	}

	limit := policy.Limit()
	if e.maxOccurrences > 0 && limit > e.maxOccurrences {
		limit = e.maxOccurrences
	}
	count := limit
	if spec.Count > 0 && spec.Count < limit {
		count = spec.Count
	}

	freq, err := rruleFrequency(policy.Frequency)
	if err != nil {
		return nil, err
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: policy.Interval,
		Count:    count,
		Until:    spec.Until.UTC(),
		Dtstart:  seed.Start,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecurrence, err)
	}

	length := seed.End.Sub(seed.Start)
	starts := rule.All()
	out := make([]availability.CandidateSlot, 0, len(starts))
	for _, start := range starts {
		start = start.UTC()
		out = append(out, availability.CandidateSlot{Start: start, End: start.Add(length)})
	}
	return out, nil
}

func rruleFrequency(f availability.Frequency) (rrule.Frequency, error) {
	switch f {
	case availability.FrequencyDaily:
		return rrule.DAILY, nil
	case availability.FrequencyWeekly:
		return rrule.WEEKLY, nil
	case availability.FrequencyMonthly:
		return rrule.MONTHLY, nil
	default:
		return 0, fmt.Errorf("%w: frequency %q", ErrInvalidRecurrence, f)
	}
}
