package services

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

var created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func rule(day time.Weekday, from, to string) domain.WeeklyRule {
	return domain.WeeklyRule{
		Weekday:    day,
		LocalRange: domain.LocalRange{Start: domain.MustClockTime(from), End: domain.MustClockTime(to)},
	}
}

func testSchedule(t *testing.T, zone string, rules ...domain.WeeklyRule) *domain.Schedule {
	t.Helper()
	s, err := domain.NewSchedule(uuid.New(), "Office hours", zone, created)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceRules(rules, created))
	return s
}

func testEventType(t *testing.T, schedule *domain.Schedule, modify ...func(*domain.EventTypeParams)) *domain.EventType {
	t.Helper()
	p := domain.EventTypeParams{
		HostID:     schedule.HostID(),
		ScheduleID: schedule.ID(),
		Slug:       "consult",
		Title:      "Consultation",
		Duration:   30 * time.Minute,
	}
	for _, m := range modify {
		m(&p)
	}
	et, err := domain.NewEventType(p, created)
	require.NoError(t, err)
	return et
}

func starts(seq []domain.CandidateSlot) []string {
	out := make([]string, len(seq))
	for i, s := range seq {
		out[i] = s.Start.Format("Mon 15:04")
	}
	return out
}

func TestGenerateSlots_SubtractsBusyTime(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	req := SlotRequest{
		Schedule:  schedule,
		EventType: testEventType(t, schedule),
		Busy:      []domain.Interval{{Start: utc(2026, 3, 9, 10, 0), End: utc(2026, 3, 9, 10, 30)}},
		From:      utc(2026, 3, 9, 0, 0),
		To:        utc(2026, 3, 10, 0, 0),
		Now:       utc(2026, 3, 1, 0, 0),
	}

	got := slices.Collect(GenerateSlots(req))

	require.Len(t, got, 15)
	assert.Equal(t, []string{"Mon 09:00", "Mon 09:30", "Mon 10:30", "Mon 11:00"}, starts(got[:4]))
	assert.Equal(t, utc(2026, 3, 9, 16, 30), got[len(got)-1].Start)
	for _, s := range got {
		assert.False(t, s.Start.Equal(utc(2026, 3, 9, 10, 0)))
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
}

func TestGenerateSlots_Buffers(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) {
		p.BufferAfter = 15 * time.Minute
		p.Granularity = 15 * time.Minute
	})

	t.Run("existing booking footprint", func(t *testing.T) {
		existing := et.Footprint(et.SlotAt(utc(2026, 3, 9, 9, 30)))
		req := SlotRequest{
			Schedule:  schedule,
			EventType: et,
			Busy:      []domain.Interval{existing},
			From:      utc(2026, 3, 9, 9, 0),
			To:        utc(2026, 3, 9, 12, 0),
			Now:       utc(2026, 3, 1, 0, 0),
		}

		got := slices.Collect(GenerateSlots(req))

		require.NotEmpty(t, got)
		assert.Equal(t, utc(2026, 3, 9, 10, 15), got[0].Start, "booking ending 10:00 blocks until 10:15")
	})

	t.Run("candidate footprint", func(t *testing.T) {
		req := SlotRequest{
			Schedule:  schedule,
			EventType: et,
			Busy:      []domain.Interval{{Start: utc(2026, 3, 9, 12, 0), End: utc(2026, 3, 9, 13, 0)}},
			From:      utc(2026, 3, 9, 11, 0),
			To:        utc(2026, 3, 9, 12, 0),
			Now:       utc(2026, 3, 1, 0, 0),
		}

		got := slices.Collect(GenerateSlots(req))

		assert.Equal(t, []string{"Mon 11:00", "Mon 11:15"}, starts(got), "11:30 would run its buffer into the busy block")
	})
}

func TestGenerateSlots_MinimumNotice(t *testing.T) {
	schedule := testSchedule(t, "UTC",
		rule(time.Monday, "09:00", "17:00"),
		rule(time.Tuesday, "09:00", "17:00"),
	)
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) { p.MinimumNotice = 24 * time.Hour })
	now := utc(2026, 3, 8, 12, 0)

	got := slices.Collect(GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: et,
		From:      now,
		To:        now.Add(72 * time.Hour),
		Now:       now,
	}))

	require.NotEmpty(t, got)
	assert.Equal(t, utc(2026, 3, 9, 12, 0), got[0].Start)
	for _, s := range got {
		assert.False(t, s.Start.Before(now.Add(24*time.Hour)))
	}
}

func TestGenerateSlots_BookingWindow(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) {
		p.Window = domain.BookingWindow{MinDaysAhead: 1, MaxDaysAhead: 8}
	})
	now := utc(2026, 3, 1, 12, 0)

	got := slices.Collect(GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: et,
		From:      now,
		To:        now.Add(30 * domain.Day),
		Now:       now,
	}))

	require.NotEmpty(t, got)
	assert.Equal(t, utc(2026, 3, 2, 12, 0), got[0].Start)
	assert.Equal(t, utc(2026, 3, 9, 11, 30), got[len(got)-1].Start)
}

func TestGenerateSlots_IsRestartable(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "12:00"))
	seq := GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: testEventType(t, schedule),
		From:      utc(2026, 3, 2, 0, 0),
		To:        utc(2026, 3, 17, 0, 0),
		Now:       utc(2026, 3, 1, 0, 0),
	})

	first := slices.Collect(seq)
	second := slices.Collect(seq)

	assert.Len(t, first, 18)
	assert.Equal(t, first, second)

	var taken []domain.CandidateSlot
	for s := range seq {
		taken = append(taken, s)
		if len(taken) == 2 {
			break
		}
	}
	assert.Equal(t, first[:2], taken)
}

func TestGenerateSlots_StraddlesMidnight(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Friday, "22:00", "02:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) {
		p.Duration = time.Hour
		p.Granularity = 30 * time.Minute
	})

	got := slices.Collect(GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: et,
		From:      utc(2026, 3, 13, 0, 0),
		To:        utc(2026, 3, 15, 0, 0),
		Now:       utc(2026, 3, 1, 0, 0),
	}))

	assert.Equal(t, []string{"Fri 22:00", "Fri 22:30", "Fri 23:00", "Fri 23:30", "Sat 00:00", "Sat 00:30", "Sat 01:00"}, starts(got))
}

func TestGenerateSlots_DSTDayInRequesterZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	schedule := testSchedule(t, "America/New_York", rule(time.Sunday, "09:00", "17:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) { p.Duration = time.Hour })

	got := slices.Collect(GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: et,
		From:      utc(2026, 3, 8, 0, 0),
		To:        utc(2026, 3, 9, 12, 0),
		Location:  ny,
		Now:       utc(2026, 3, 1, 0, 0),
	}))

	require.Len(t, got, 8)
	assert.Equal(t, utc(2026, 3, 8, 13, 0), got[0].Start.UTC())
	assert.Equal(t, "09:00", got[0].Start.Format("15:04"))
	assert.Equal(t, "16:00", got[7].Start.Format("15:04"))
	assert.Equal(t, "America/New_York", got[0].Start.Location().String())
}

func TestGenerateSlots_EmptyInputs(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule)

	assert.Empty(t, slices.Collect(GenerateSlots(SlotRequest{EventType: et})))
	assert.Empty(t, slices.Collect(GenerateSlots(SlotRequest{
		Schedule:  schedule,
		EventType: et,
		From:      utc(2026, 3, 9, 17, 0),
		To:        utc(2026, 3, 9, 9, 0),
	})))
}

func TestVerifySlot(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) {
		p.BufferBefore = 10 * time.Minute
		p.MinimumNotice = 24 * time.Hour
		p.Window = domain.BookingWindow{MaxDaysAhead: 30}
	})
	busy := []domain.Interval{{Start: utc(2026, 3, 9, 11, 0), End: utc(2026, 3, 9, 11, 55)}}
	now := utc(2026, 3, 6, 9, 0)

	tests := []struct {
		name        string
		start       time.Time
		now         time.Time
		checkWindow bool
		wantErr     error
	}{
		{name: "free slot", start: utc(2026, 3, 9, 9, 0), now: now, checkWindow: true},
		{name: "outside availability", start: utc(2026, 3, 9, 16, 45), now: now, checkWindow: true, wantErr: ErrOutsideAvailability},
		{name: "buffer reaches busy time", start: utc(2026, 3, 9, 12, 0), now: now, checkWindow: true, wantErr: ErrSlotBusy},
		{name: "too soon", start: utc(2026, 3, 9, 9, 0), now: utc(2026, 3, 8, 12, 0), checkWindow: true, wantErr: ErrTooSoon},
		{name: "too soon ignored for later occurrences", start: utc(2026, 3, 9, 9, 0), now: utc(2026, 3, 8, 12, 0)},
		{name: "beyond window", start: utc(2026, 4, 13, 9, 0), now: now, checkWindow: true, wantErr: ErrOutsideBookingWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := SlotRequest{Schedule: schedule, EventType: et, Busy: busy, Now: tt.now}

			err := VerifySlot(req, et.SlotAt(tt.start), tt.checkWindow)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
