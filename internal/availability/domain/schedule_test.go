package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

var created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func rule(day time.Weekday, from, to string) domain.WeeklyRule {
	return domain.WeeklyRule{
		Weekday:    day,
		LocalRange: domain.LocalRange{Start: domain.MustClockTime(from), End: domain.MustClockTime(to)},
	}
}

func newSchedule(t *testing.T, zone string, rules ...domain.WeeklyRule) *domain.Schedule {
	t.Helper()
	s, err := domain.NewSchedule(uuid.New(), "Office hours", zone, created)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceRules(rules, created))
	return s
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNewSchedule_Validation(t *testing.T) {
	_, err := domain.NewSchedule(uuid.Nil, "x", "UTC", created)
	assert.ErrorIs(t, err, domain.ErrEmptyHostID)

	_, err = domain.NewSchedule(uuid.New(), "x", "Nowhere/City", created)
	assert.ErrorIs(t, err, domain.ErrUnknownTimeZone)
}

func TestSchedule_RuleValidation(t *testing.T) {
	tests := []struct {
		name    string
		rules   []domain.WeeklyRule
		wantErr error
	}{
		{name: "adjacent rules", rules: []domain.WeeklyRule{rule(time.Monday, "09:00", "12:00"), rule(time.Monday, "12:00", "17:00")}},
		{name: "end of day", rules: []domain.WeeklyRule{rule(time.Monday, "18:00", "24:00"), rule(time.Tuesday, "00:00", "02:00")}},
		{name: "same day overlap", rules: []domain.WeeklyRule{rule(time.Monday, "09:00", "12:00"), rule(time.Monday, "11:00", "13:00")}, wantErr: domain.ErrOverlappingRules},
		{name: "crossing midnight overlaps next morning", rules: []domain.WeeklyRule{rule(time.Friday, "22:00", "02:00"), rule(time.Saturday, "01:00", "03:00")}, wantErr: domain.ErrOverlappingRules},
		{name: "saturday night wraps into sunday", rules: []domain.WeeklyRule{rule(time.Saturday, "22:00", "02:00"), rule(time.Sunday, "01:00", "05:00")}, wantErr: domain.ErrOverlappingRules},
		{name: "empty range", rules: []domain.WeeklyRule{rule(time.Monday, "09:00", "09:00")}, wantErr: domain.ErrInvalidRule},
		{name: "bad weekday", rules: []domain.WeeklyRule{rule(time.Weekday(9), "09:00", "10:00")}, wantErr: domain.ErrInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := domain.NewSchedule(uuid.New(), "x", "UTC", created)
			require.NoError(t, err)

			err = s.ReplaceRules(tt.rules, created)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, s.Rules(), "rules unchanged on error")
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.Rules(), len(tt.rules))
		})
	}
}

func TestSchedule_AddRule(t *testing.T) {
	s := newSchedule(t, "UTC", rule(time.Tuesday, "09:00", "17:00"))

	require.NoError(t, s.AddRule(rule(time.Monday, "09:00", "17:00"), created.Add(time.Hour)))
	assert.ErrorIs(t, s.AddRule(rule(time.Monday, "16:00", "18:00"), created), domain.ErrOverlappingRules)

	rules := s.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, time.Monday, rules[0].Weekday, "rules ordered by week position")
	assert.Equal(t, created.Add(time.Hour), s.UpdatedAt())
}

func TestSchedule_AvailableIntervals_SameZone(t *testing.T) {
	s := newSchedule(t, "UTC",
		rule(time.Monday, "09:00", "12:00"),
		rule(time.Monday, "12:00", "17:00"),
	)

	got := s.AvailableIntervals(domain.MustDate("2026-03-09"), time.UTC)

	require.Len(t, got, 1, "touching rules merge")
	assert.Equal(t, utc(2026, 3, 9, 9, 0), got[0].Start)
	assert.Equal(t, utc(2026, 3, 9, 17, 0), got[0].End)
	assert.Empty(t, s.AvailableIntervals(domain.MustDate("2026-03-10"), time.UTC))
}

func TestSchedule_AvailableIntervals_HalfHourOffsetSplitsAcrossDates(t *testing.T) {
	kolkata := mustLoad(t, "Asia/Kolkata")
	s := newSchedule(t, "UTC", rule(time.Monday, "17:00", "20:00"))

	monday := s.AvailableIntervals(domain.MustDate("2026-03-09"), kolkata)
	tuesday := s.AvailableIntervals(domain.MustDate("2026-03-10"), kolkata)

	require.Len(t, monday, 1)
	assert.Equal(t, utc(2026, 3, 9, 17, 0), monday[0].Start.UTC())
	assert.Equal(t, utc(2026, 3, 9, 18, 30), monday[0].End.UTC())
	assert.Equal(t, "22:30", monday[0].Start.Format("15:04"))

	require.Len(t, tuesday, 1)
	assert.Equal(t, utc(2026, 3, 9, 18, 30), tuesday[0].Start.UTC())
	assert.Equal(t, utc(2026, 3, 9, 20, 0), tuesday[0].End.UTC())
	assert.Equal(t, "00:00", tuesday[0].Start.Format("15:04"))
	assert.Equal(t, "01:30", tuesday[0].End.Format("15:04"))
}

func TestSchedule_AvailableIntervals_QuarterHourOffsetReference(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	s := newSchedule(t, "Asia/Kathmandu", rule(time.Monday, "09:00", "17:00"))

	inUTC := s.AvailableIntervals(domain.MustDate("2026-01-05"), time.UTC)
	require.Len(t, inUTC, 1)
	assert.Equal(t, utc(2026, 1, 5, 3, 15), inUTC[0].Start)
	assert.Equal(t, utc(2026, 1, 5, 11, 15), inUTC[0].End)

	sunday := s.AvailableIntervals(domain.MustDate("2026-01-04"), la)
	monday := s.AvailableIntervals(domain.MustDate("2026-01-05"), la)
	require.Len(t, sunday, 1)
	require.Len(t, monday, 1)
	assert.Equal(t, "19:15", sunday[0].Start.Format("15:04"))
	assert.Equal(t, "00:00", sunday[0].End.Format("15:04"))
	assert.Equal(t, "00:00", monday[0].Start.Format("15:04"))
	assert.Equal(t, "03:15", monday[0].End.Format("15:04"))
	assert.Equal(t, 8*time.Hour, sunday[0].Duration()+monday[0].Duration())
}

func TestSchedule_AvailableIntervals_RuleCrossingMidnight(t *testing.T) {
	s := newSchedule(t, "UTC", rule(time.Friday, "22:00", "02:00"))

	friday := s.AvailableIntervals(domain.MustDate("2026-03-13"), time.UTC)
	saturday := s.AvailableIntervals(domain.MustDate("2026-03-14"), time.UTC)

	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 13, 22, 0), End: utc(2026, 3, 14, 0, 0)}}, friday)
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 14, 0, 0), End: utc(2026, 3, 14, 2, 0)}}, saturday)

	merged := s.AvailableBetween(utc(2026, 3, 13, 20, 0), utc(2026, 3, 14, 4, 0))
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 13, 22, 0), End: utc(2026, 3, 14, 2, 0)}}, merged)
}

func TestSchedule_DSTSpringForwardIsContiguous(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	s := newSchedule(t, "America/New_York", rule(time.Sunday, "09:00", "17:00"))
	springForward := domain.MustDate("2026-03-08")

	for _, loc := range []*time.Location{ny, time.UTC} {
		got := s.AvailableIntervals(springForward, loc)
		require.Len(t, got, 1, loc.String())
		assert.Equal(t, 8*time.Hour, got[0].Duration(), loc.String())
		assert.Equal(t, utc(2026, 3, 8, 13, 0), got[0].Start.UTC())
		assert.Equal(t, utc(2026, 3, 8, 21, 0), got[0].End.UTC())
	}

	// The week before is still on standard time.
	before := s.AvailableIntervals(domain.MustDate("2026-03-01"), ny)
	require.Len(t, before, 1)
	assert.Equal(t, utc(2026, 3, 1, 14, 0), before[0].Start.UTC())
	assert.Equal(t, 8*time.Hour, before[0].Duration())
}

func TestSchedule_DSTFallBackKeepsWallClock(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	s := newSchedule(t, "America/New_York", rule(time.Sunday, "00:00", "04:00"))

	got := s.AvailableIntervals(domain.MustDate("2026-11-01"), ny)

	require.Len(t, got, 1)
	assert.Equal(t, utc(2026, 11, 1, 4, 0), got[0].Start.UTC())
	assert.Equal(t, utc(2026, 11, 1, 9, 0), got[0].End.UTC())
	assert.Equal(t, 5*time.Hour, got[0].Duration(), "the repeated hour is counted once")
}

func TestSchedule_Overrides(t *testing.T) {
	s := newSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	monday := domain.MustDate("2026-03-09")
	ranges := []domain.LocalRange{{Start: domain.MustClockTime("10:00"), End: domain.MustClockTime("12:00")}}

	require.NoError(t, s.SetOverride(monday, ranges, created))
	got := s.AvailableIntervals(monday, time.UTC)
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 9, 10, 0), End: utc(2026, 3, 9, 12, 0)}}, got)

	next := s.AvailableIntervals(monday.AddDays(7), time.UTC)
	assert.Equal(t, utc(2026, 3, 16, 9, 0), next[0].Start, "other mondays keep the rule")

	require.NoError(t, s.BlockDate(monday, created))
	assert.Empty(t, s.AvailableIntervals(monday, time.UTC))
	o, ok := s.Override(monday)
	require.True(t, ok)
	assert.True(t, o.Blocked())

	assert.True(t, s.RemoveOverride(monday, created))
	assert.False(t, s.RemoveOverride(monday, created))
	assert.Len(t, s.AvailableIntervals(monday, time.UTC), 1)

	bad := []domain.LocalRange{
		{Start: domain.MustClockTime("10:00"), End: domain.MustClockTime("12:00")},
		{Start: domain.MustClockTime("11:00"), End: domain.MustClockTime("13:00")},
	}
	assert.ErrorIs(t, s.SetOverride(monday, bad, created), domain.ErrOverlappingRules)
	assert.ErrorIs(t, s.SetOverride(domain.Date{}, ranges, created), domain.ErrInvalidDate)
}

func TestSchedule_OverrideMasksRuleFromPreviousDay(t *testing.T) {
	s := newSchedule(t, "UTC", rule(time.Monday, "22:00", "02:00"))
	monday := domain.MustDate("2026-03-09")
	tuesday := domain.MustDate("2026-03-10")

	require.NoError(t, s.BlockDate(tuesday, created))

	assert.Empty(t, s.AvailableIntervals(tuesday, time.UTC))
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 9, 22, 0), End: utc(2026, 3, 10, 0, 0)}},
		s.AvailableIntervals(monday, time.UTC))
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 9, 22, 0), End: utc(2026, 3, 10, 0, 0)}},
		s.AvailableBetween(utc(2026, 3, 9, 0, 0), utc(2026, 3, 11, 0, 0)))

	ranges := []domain.LocalRange{{Start: domain.MustClockTime("01:00"), End: domain.MustClockTime("03:00")}}
	require.NoError(t, s.SetOverride(tuesday, ranges, created))
	assert.Equal(t, []domain.Interval{{Start: utc(2026, 3, 10, 1, 0), End: utc(2026, 3, 10, 3, 0)}},
		s.AvailableIntervals(tuesday, time.UTC))

	// Blocking the rule's own date removes the spill-over too.
	assert.True(t, s.RemoveOverride(tuesday, created))
	require.NoError(t, s.BlockDate(monday, created))
	assert.Empty(t, s.AvailableIntervals(tuesday, time.UTC))
}

func TestSchedule_OverridesOrdered(t *testing.T) {
	s := newSchedule(t, "UTC")
	require.NoError(t, s.BlockDate(domain.MustDate("2026-05-02"), created))
	require.NoError(t, s.BlockDate(domain.MustDate("2026-04-30"), created))

	got := s.Overrides()
	require.Len(t, got, 2)
	assert.Equal(t, "2026-04-30", got[0].Date.String())
}

func TestSchedule_Contains(t *testing.T) {
	s := newSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))

	assert.True(t, s.Contains(domain.Interval{Start: utc(2026, 3, 9, 16, 30), End: utc(2026, 3, 9, 17, 0)}))
	assert.False(t, s.Contains(domain.Interval{Start: utc(2026, 3, 9, 16, 30), End: utc(2026, 3, 9, 17, 30)}))
	assert.False(t, s.Contains(domain.Interval{Start: utc(2026, 3, 10, 9, 0), End: utc(2026, 3, 10, 10, 0)}))
}

func TestRehydrateSchedule(t *testing.T) {
	id, host := uuid.New(), uuid.New()
	overrides := []domain.DateOverride{{Date: domain.MustDate("2026-03-09")}}

	s, err := domain.RehydrateSchedule(id, host, "Desk", "Europe/Berlin",
		[]domain.WeeklyRule{rule(time.Monday, "09:00", "17:00")}, overrides, created, created, 3)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID())
	assert.Equal(t, "Europe/Berlin", s.TimeZone())
	assert.Equal(t, 3, s.Version())
	assert.Empty(t, s.AvailableIntervals(domain.MustDate("2026-03-09"), nil))

	_, err = domain.RehydrateSchedule(id, host, "Desk", "UTC",
		[]domain.WeeklyRule{rule(time.Monday, "09:00", "17:00"), rule(time.Monday, "10:00", "11:00")}, nil, created, created, 0)
	assert.ErrorIs(t, err, domain.ErrOverlappingRules)
}
