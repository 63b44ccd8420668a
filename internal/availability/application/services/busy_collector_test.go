package services

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

type fakeSource struct {
	name    string
	busy    []domain.BusyInterval
	err     error
	block   chan struct{}
	calls   atomic.Int32
	running *atomic.Int32
	peak    *atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) BusyBetween(ctx context.Context, _, _ time.Time) ([]domain.BusyInterval, error) {
	f.calls.Add(1)
	if f.running != nil {
		n := f.running.Add(1)
		defer f.running.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.block != nil {
		<-f.block
	}
	return f.busy, f.err
}

func busyAt(from, to time.Time) domain.BusyInterval {
	return domain.BusyInterval{Interval: domain.Interval{Start: from, End: to}}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{in: "assume_busy", want: FailurePolicyAssumeBusy},
		{in: "assume_free", want: FailurePolicyAssumeFree},
		{in: "", want: FailurePolicyAssumeBusy},
		{in: "assume_nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, sharedDomain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBusyCollector_MergesAndClips(t *testing.T) {
	start, end := utc(2026, 3, 9, 9, 0), utc(2026, 3, 9, 17, 0)
	google := &fakeSource{name: "google", busy: []domain.BusyInterval{
		busyAt(utc(2026, 3, 9, 8, 0), utc(2026, 3, 9, 9, 30)),
		busyAt(utc(2026, 3, 9, 18, 0), utc(2026, 3, 9, 19, 0)),
	}}
	caldav := &fakeSource{name: "caldav", busy: []domain.BusyInterval{
		{Interval: domain.Interval{Start: utc(2026, 3, 9, 12, 0), End: utc(2026, 3, 9, 13, 0)}, Source: "caldav:work"},
	}}
	collector := NewBusyCollector(DefaultCollectorConfig(), nil, nil)

	got := collector.Collect(context.Background(), []domain.BusyTimeSource{google, caldav}, start, end)

	assert.False(t, got.Degraded())
	require.Len(t, got.Busy, 2)
	assert.Equal(t, domain.BusyInterval{Interval: domain.Interval{Start: start, End: utc(2026, 3, 9, 9, 30)}, Source: "google"}, got.Busy[0])
	assert.Equal(t, "caldav:work", got.Busy[1].Source)
}

func TestBusyCollector_FailurePolicy(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule)
	start, end := utc(2026, 3, 9, 0, 0), utc(2026, 3, 10, 0, 0)

	tests := []struct {
		policy    FailurePolicy
		wantBusy  int
		wantSlots int
	}{
		{policy: FailurePolicyAssumeBusy, wantBusy: 1, wantSlots: 0},
		{policy: FailurePolicyAssumeFree, wantBusy: 0, wantSlots: 16},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			metrics := observability.NewInMemoryMetrics()
			broken := &fakeSource{name: "outlook", err: errors.New("503 service unavailable")}
			collector := NewBusyCollector(CollectorConfig{Policy: tt.policy}, nil, metrics)

			got := collector.Collect(context.Background(), []domain.BusyTimeSource{broken}, start, end)

			require.Len(t, got.Warnings, 1, "a failed source is never silently free")
			assert.Equal(t, "outlook", got.Warnings[0].Source)
			assert.ErrorIs(t, got.Warnings[0].Err, sharedDomain.ErrSourceUnavailable)
			assert.Contains(t, got.Warnings[0].String(), "503")
			assert.Len(t, got.Busy, tt.wantBusy)
			assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricBusySourceFailures, observability.T("source", "outlook")))

			slots := slices.Collect(GenerateSlots(SlotRequest{
				Schedule:  schedule,
				EventType: et,
				Busy:      domain.Intervals(got.Busy),
				From:      start,
				To:        end,
				Now:       utc(2026, 3, 1, 0, 0),
			}))
			assert.Len(t, slots, tt.wantSlots)
		})
	}
}

func TestBusyCollector_TimeoutIsPerSource(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := &fakeSource{name: "slow", block: release}
	fast := &fakeSource{name: "fast", busy: []domain.BusyInterval{busyAt(utc(2026, 3, 9, 10, 0), utc(2026, 3, 9, 11, 0))}}
	collector := NewBusyCollector(CollectorConfig{Timeout: 20 * time.Millisecond, Policy: FailurePolicyAssumeFree}, nil, nil)

	began := time.Now()
	got := collector.Collect(context.Background(), []domain.BusyTimeSource{slow, fast}, utc(2026, 3, 9, 0, 0), utc(2026, 3, 10, 0, 0))

	assert.Less(t, time.Since(began), time.Second)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "slow", got.Warnings[0].Source)
	assert.ErrorIs(t, got.Warnings[0].Err, context.DeadlineExceeded)
	require.Len(t, got.Busy, 1)
	assert.Equal(t, "fast", got.Busy[0].Source)
}

func TestBusyCollector_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	sources := make([]domain.BusyTimeSource, 6)
	for i := range sources {
		sources[i] = &fakeSource{name: "cal", running: &running, peak: &peak}
	}
	collector := NewBusyCollector(CollectorConfig{Concurrency: 2}, nil, nil)

	got := collector.Collect(context.Background(), sources, utc(2026, 3, 9, 0, 0), utc(2026, 3, 10, 0, 0))

	assert.Empty(t, got.Warnings)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, s := range sources {
		assert.Equal(t, int32(1), s.(*fakeSource).calls.Load())
	}
}

type fakeBooked struct {
	busy       []domain.BusyInterval
	err        error
	key        string
	start, end time.Time
}

func (f *fakeBooked) ListBusy(_ context.Context, key string, start, end time.Time) ([]domain.BusyInterval, error) {
	f.key, f.start, f.end = key, start, end
	return f.busy, f.err
}

type fakeProvider struct {
	sources []domain.BusyTimeSource
	err     error
}

func (f fakeProvider) SourcesFor(context.Context, uuid.UUID) ([]domain.BusyTimeSource, error) {
	return f.sources, f.err
}

func TestBusyLoader_Load(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule, func(p *domain.EventTypeParams) {
		p.BufferBefore = 5 * time.Minute
		p.BufferAfter = 15 * time.Minute
	})
	from, to := utc(2026, 3, 9, 9, 0), utc(2026, 3, 9, 17, 0)

	t.Run("combines bookings and calendars over the widened range", func(t *testing.T) {
		booked := &fakeBooked{busy: []domain.BusyInterval{{Interval: domain.Interval{Start: from, End: from.Add(time.Hour)}, Source: "bookings"}}}
		cal := &fakeSource{name: "google", busy: []domain.BusyInterval{busyAt(utc(2026, 3, 9, 12, 0), utc(2026, 3, 9, 13, 0))}}
		loader := NewBusyLoader(booked, fakeProvider{sources: []domain.BusyTimeSource{cal}}, NewBusyCollector(DefaultCollectorConfig(), nil, nil))

		got, err := loader.Load(context.Background(), et, from, to)

		require.NoError(t, err)
		assert.Equal(t, et.ResourceKey(), booked.key)
		assert.Equal(t, from.Add(-5*time.Minute), booked.start)
		assert.Equal(t, to.Add(15*time.Minute), booked.end)
		require.Len(t, got.Busy, 2)
		assert.Equal(t, "bookings", got.Busy[0].Source)
		assert.Equal(t, "google", got.Busy[1].Source)
	})

	t.Run("booking store errors are not degraded", func(t *testing.T) {
		loader := NewBusyLoader(&fakeBooked{err: errors.New("database is locked")}, nil, NewBusyCollector(DefaultCollectorConfig(), nil, nil))

		_, err := loader.Load(context.Background(), et, from, to)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")
	})
}

type fakeSchedules struct {
	schedule *domain.Schedule
}

func (f fakeSchedules) Save(context.Context, *domain.Schedule) error { return nil }

func (f fakeSchedules) FindByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	if f.schedule == nil || f.schedule.ID() != id {
		return nil, domain.ErrScheduleNotFound
	}
	return f.schedule, nil
}

func (f fakeSchedules) FindByHost(context.Context, uuid.UUID) ([]*domain.Schedule, error) {
	return []*domain.Schedule{f.schedule}, nil
}

func TestSlotVerifier_Verify(t *testing.T) {
	schedule := testSchedule(t, "UTC", rule(time.Monday, "09:00", "17:00"))
	et := testEventType(t, schedule)
	now := utc(2026, 3, 1, 0, 0)
	booked := &fakeBooked{busy: []domain.BusyInterval{busyAt(utc(2026, 3, 9, 10, 0), utc(2026, 3, 9, 10, 30))}}
	broken := &fakeSource{name: "caldav", err: errors.New("connection refused")}

	verifier := NewSlotVerifier(fakeSchedules{schedule: schedule},
		NewBusyLoader(booked, fakeProvider{sources: []domain.BusyTimeSource{broken}},
			NewBusyCollector(CollectorConfig{Policy: FailurePolicyAssumeFree}, nil, nil)))

	warnings, err := verifier.Verify(context.Background(), et, et.SlotAt(utc(2026, 3, 9, 9, 0)), now, true)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	_, err = verifier.Verify(context.Background(), et, et.SlotAt(utc(2026, 3, 9, 10, 0)), now, true)
	assert.ErrorIs(t, err, sharedDomain.ErrSlotUnavailable)

	other := testEventType(t, testSchedule(t, "UTC"))
	_, err = verifier.Verify(context.Background(), other, other.SlotAt(utc(2026, 3, 9, 9, 0)), now, true)
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}
