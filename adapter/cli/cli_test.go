package cli

import (
	"bytes"
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	availabilityCommands "github.com/felixgeelhaar/slotwise/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	bookingCommands "github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

var now = time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC)

const seedYAML = `
hosts:
  - id: 9b0e6a52-3c4d-4f1e-8a2b-6c7d8e9f0a1b
    schedules:
      - name: Office hours
        time_zone: Europe/Berlin
        rules:
          - { weekday: mon, start: "09:00", end: "12:00" }
          - { weekday: mon, start: "13:00", end: "17:00" }
        overrides:
          - { date: 2026-12-24, ranges: [] }
    event_types:
      - slug: intro
        title: Intro call
        schedule: Office hours
        duration: 30m
        buffer_after: 10m
        minimum_notice: 2h
        max_days_ahead: 30
        recurrence:
          kind: fixed_count
          frequency: weekly
          count: 4
`

type slotsFunc func(ctx context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error)

func (f slotsFunc) Handle(ctx context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
	return f(ctx, q)
}

type createFunc func(ctx context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error)

func (f createFunc) Handle(ctx context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error) {
	return f(ctx, cmd)
}

type conflictsFunc func(ctx context.Context, hostID uuid.UUID, from, to time.Time) (*calendarApp.ConflictReport, error)

func (f conflictsFunc) Detect(ctx context.Context, hostID uuid.UUID, from, to time.Time) (*calendarApp.ConflictReport, error) {
	return f(ctx, hostID, from, to)
}

type scheduleRecorder struct {
	commands []availabilityCommands.UpsertScheduleCommand
}

func (r *scheduleRecorder) Handle(_ context.Context, cmd availabilityCommands.UpsertScheduleCommand) (*availabilityCommands.UpsertScheduleResult, error) {
	r.commands = append(r.commands, cmd)
	return &availabilityCommands.UpsertScheduleResult{ScheduleID: uuid.New(), Created: true}, nil
}

type eventTypeRecorder struct {
	commands []availabilityCommands.UpsertEventTypeCommand
}

func (r *eventTypeRecorder) Handle(_ context.Context, cmd availabilityCommands.UpsertEventTypeCommand) (*availabilityCommands.UpsertEventTypeResult, error) {
	r.commands = append(r.commands, cmd)
	return &availabilityCommands.UpsertEventTypeResult{EventTypeID: uuid.New(), Created: len(r.commands) == 1}, nil
}

type fakeMigrator struct {
	version int64
	pending int
	ups     int
}

func (m *fakeMigrator) Up(context.Context) error {
	m.ups++
	m.version += int64(m.pending)
	m.pending = 0
	return nil
}
func (m *fakeMigrator) Down(context.Context) error             { m.version--; m.pending++; return nil }
func (m *fakeMigrator) Version(context.Context) (int64, error) { return m.version, nil }
func (m *fakeMigrator) Pending(context.Context) (int, error)   { return m.pending, nil }

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, a *App, args ...string) (string, error) {
	t.Helper()
	SetApp(a)
	t.Cleanup(func() { SetApp(nil) })
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newBooking(t *testing.T, start time.Time) *bookingDomain.Booking {
	t.Helper()
	et, err := availability.NewEventType(availability.EventTypeParams{
		HostID:     uuid.New(),
		ScheduleID: uuid.New(),
		Slug:       "intro",
		Duration:   30 * time.Minute,
	}, now)
	require.NoError(t, err)
	b, err := bookingDomain.NewBooking(et, et.SlotAt(start), bookingDomain.Attendee{Name: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)
	return b
}

func TestLoadSeed(t *testing.T) {
	file, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, file.Hosts, 1)

	host := file.Hosts[0]
	require.Len(t, host.Schedules, 1)
	assert.Equal(t, "Europe/Berlin", host.Schedules[0].TimeZone)
	assert.Len(t, host.Schedules[0].Rules, 2)
	require.Len(t, host.Schedules[0].Overrides, 1)
	assert.Empty(t, host.Schedules[0].Overrides[0].Ranges)

	require.Len(t, host.EventTypes, 1)
	et := host.EventTypes[0]
	assert.Equal(t, "30m", et.Duration)
	assert.Equal(t, availability.RecurrenceFixedCount, et.Recurrence.Kind)
	assert.Equal(t, 4, et.Recurrence.Count)
}

func TestLoadSeed_Errors(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("hosts:\n  - id: x\n    calendars: []\n"))
	assert.Error(t, err, "unknown keys are rejected")

	file, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file.Hosts)
}

func TestSeedFile_Apply(t *testing.T) {
	file, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	schedules := &scheduleRecorder{}
	eventTypes := &eventTypeRecorder{}
	report, err := file.Apply(context.Background(), schedules, eventTypes)
	require.NoError(t, err)

	assert.Equal(t, 1, report.SchedulesCreated)
	assert.Equal(t, 1, report.EventTypesCreated)
	assert.Contains(t, report.EventTypeIDs, "intro")

	require.Len(t, schedules.commands, 1)
	sc := schedules.commands[0]
	assert.Equal(t, uuid.MustParse("9b0e6a52-3c4d-4f1e-8a2b-6c7d8e9f0a1b"), sc.HostID)
	assert.Equal(t, "mon", sc.Rules[0].Weekday)
	assert.Equal(t, "13:00", sc.Rules[1].Start)
	assert.Equal(t, "2026-12-24", sc.Overrides[0].Date)

	require.Len(t, eventTypes.commands, 1)
	ec := eventTypes.commands[0]
	assert.Equal(t, sc.HostID, ec.HostID)
	assert.NotEqual(t, uuid.Nil, ec.ScheduleID)
	assert.Equal(t, 30*time.Minute, ec.Duration)
	assert.Equal(t, 10*time.Minute, ec.BufferAfter)
	assert.Equal(t, 2*time.Hour, ec.MinimumNotice)
	assert.Zero(t, ec.Granularity)
	assert.Equal(t, 30, ec.MaxDaysAhead)
}

func TestSeedFile_ApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		file SeedFile
		want string
	}{
		{
			name: "invalid host id",
			file: SeedFile{Hosts: []SeedHost{{ID: "nope"}}},
			want: "invalid id",
		},
		{
			name: "unknown schedule",
			file: SeedFile{Hosts: []SeedHost{{
				ID:         uuid.NewString(),
				EventTypes: []SeedEventType{{Slug: "intro", Schedule: "Missing", Duration: "30m"}},
			}}},
			want: `unknown schedule "Missing"`,
		},
		{
			name: "bad duration",
			file: SeedFile{Hosts: []SeedHost{{
				ID:         uuid.NewString(),
				Schedules:  []SeedSchedule{{Name: "Week", TimeZone: "UTC"}},
				EventTypes: []SeedEventType{{Slug: "intro", Schedule: "Week", Duration: "half an hour"}},
			}}},
			want: "invalid duration",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.file.Apply(context.Background(), &scheduleRecorder{}, &eventTypeRecorder{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSlotsCommand(t *testing.T) {
	eventTypeID := uuid.New()
	var got availabilityQueries.ComputeSlotsQuery
	a := &App{ComputeSlots: slotsFunc(func(_ context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
		got = q
		start := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)
		return &availabilityQueries.SlotsResult{
			EventTypeID: eventTypeID,
			TimeZone:    "Europe/Berlin",
			Slots:       []availability.CandidateSlot{{Start: start, End: start.Add(30 * time.Minute)}},
			Warnings:    []availabilityServices.SourceWarning{{Source: "google:primary", Err: errors.New("timeout")}},
		}, nil
	})}

	out, err := run(t, a, "slots", eventTypeID.String(), "--from", "2026-03-03", "--days", "2", "--tz", "Europe/Berlin")
	require.NoError(t, err)

	berlin, _ := time.LoadLocation("Europe/Berlin")
	assert.Equal(t, eventTypeID, got.EventTypeID)
	assert.True(t, got.From.Equal(time.Date(2026, time.March, 3, 0, 0, 0, 0, berlin)))
	assert.True(t, got.To.Equal(time.Date(2026, time.March, 5, 0, 0, 0, 0, berlin)))
	assert.Contains(t, out, "warning: google:primary unavailable: timeout")
	assert.Contains(t, out, "Tue 2026-03-03 09:00-09:30  2026-03-03T08:00:00Z")
	assert.Contains(t, out, "1 slots (Europe/Berlin)")
}

func TestSlotsCommand_Errors(t *testing.T) {
	_, err := run(t, nil, "slots", uuid.NewString())
	assert.ErrorIs(t, err, errNotConnected)

	a := &App{ComputeSlots: slotsFunc(func(context.Context, availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
		return nil, errors.New("unreachable")
	})}
	_, err = run(t, a, "slots", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid id")
	_, err = run(t, a, "slots", uuid.NewString(), "--tz", "Mars/Olympus")
	assert.ErrorContains(t, err, "unknown time zone")
}

func TestBookCommand(t *testing.T) {
	start := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)

	t.Run("booked", func(t *testing.T) {
		var got bookingCommands.CreateBookingCommand
		a := &App{CreateBooking: createFunc(func(_ context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error) {
			got = cmd
			return &bookingCommands.CreateBookingResult{Booking: newBooking(t, cmd.SlotStart)}, nil
		})}
		out, err := run(t, a, "book", uuid.NewString(), "--start", "2026-03-03T09:00:00+01:00", "--name", "Ada", "--email", "ada@example.com")
		require.NoError(t, err)
		assert.True(t, got.SlotStart.Equal(start))
		assert.Equal(t, "ada@example.com", got.Attendee.Email)
		assert.Nil(t, got.Recurrence)
		assert.Contains(t, out, "Tue 2026-03-03 08:00-08:30")
		assert.Contains(t, out, "Booked.")
	})

	t.Run("rejected", func(t *testing.T) {
		a := &App{CreateBooking: createFunc(func(_ context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error) {
			return nil, bookingDomain.NewRejectedError(bookingDomain.RejectionSlotUnavailable, bookingDomain.ReasonSlotTaken, newBooking(t, cmd.SlotStart), nil)
		})}
		_, err := run(t, a, "book", uuid.NewString(), "--start", "2026-03-03T08:00:00Z", "--email", "ada@example.com")
		assert.EqualError(t, err, "booking rejected: slot no longer available")
	})

	t.Run("recurrence", func(t *testing.T) {
		var got bookingCommands.CreateBookingCommand
		a := &App{CreateBooking: createFunc(func(_ context.Context, cmd bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error) {
			got = cmd
			return &bookingCommands.CreateBookingResult{Booking: newBooking(t, cmd.SlotStart)}, nil
		})}
		_, err := run(t, a, "book", uuid.NewString(), "--start", "2026-03-03T08:00:00Z", "--email", "ada@example.com", "--repeat", "3", "--until", "2026-04-01")
		require.NoError(t, err)
		require.NotNil(t, got.Recurrence)
		assert.Equal(t, 3, got.Recurrence.Count)
		assert.True(t, got.Recurrence.Until.Equal(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("missing email", func(t *testing.T) {
		a := &App{CreateBooking: createFunc(func(context.Context, bookingCommands.CreateBookingCommand) (*bookingCommands.CreateBookingResult, error) {
			return nil, errors.New("unreachable")
		})}
		_, err := run(t, a, "book", uuid.NewString(), "--start", "2026-03-03T08:00:00Z")
		assert.ErrorContains(t, err, "email")
	})
}

func TestMigrateCommands(t *testing.T) {
	m := &fakeMigrator{version: 3, pending: 2}
	a := &App{Migrator: m}

	out, err := run(t, a, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 3")
	assert.Contains(t, out, "Pending: 2")

	out, err = run(t, a, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ups)
	assert.Contains(t, out, "Schema version: 5")

	out, err = run(t, a, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 4")
}

func TestEnvFile(t *testing.T) {
	assert.Equal(t, ".env.test", EnvFile([]string{"slots", "--from", "2026-03-03", "--env-file", ".env.test"}))
	assert.Equal(t, "local.env", EnvFile([]string{"-e", "local.env", "serve"}))
	assert.Empty(t, EnvFile([]string{"book", "--start", "2026-03-03T08:00:00Z"}))
}

func TestHealthCommand(t *testing.T) {
	health := observability.NewHealthRegistry()
	health.Register("database", func(context.Context) observability.HealthCheckResult {
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	out, err := run(t, &App{Health: health}, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "database")
	assert.Contains(t, out, "ok")

	health.Register("redis", func(context.Context) observability.HealthCheckResult {
		return observability.HealthCheckResult{Status: observability.HealthStatusUnhealthy, Message: "connection refused"}
	})
	out, err = run(t, &App{Health: health}, "health")
	assert.EqualError(t, err, "unhealthy")
	assert.Contains(t, out, "connection refused")
}

func TestConflictsCommand(t *testing.T) {
	hostID := uuid.New()
	booked := newBooking(t, time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	report := &calendarApp.ConflictReport{
		Checked: 3,
		Conflicts: []calendarApp.Conflict{{
			Booking: booked,
			Source:  "google:primary",
			Busy: availability.Interval{
				Start: time.Date(2026, time.March, 10, 10, 15, 0, 0, time.UTC),
				End:   time.Date(2026, time.March, 10, 10, 30, 0, 0, time.UTC),
			},
		}},
		Skipped: []calendarApp.SkippedSource{{Source: "caldav:home", Err: errors.New("401 unauthorized")}},
	}

	var gotHost uuid.UUID
	var gotFrom, gotTo time.Time
	a := &App{DetectConflicts: conflictsFunc(func(_ context.Context, id uuid.UUID, from, to time.Time) (*calendarApp.ConflictReport, error) {
		gotHost, gotFrom, gotTo = id, from, to
		return report, nil
	})}

	out, err := run(t, a, "conflicts", hostID.String(), "--from", "2026-03-09", "--tz", "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, hostID, gotHost)
	assert.True(t, gotFrom.Equal(time.Date(2026, time.March, 8, 23, 0, 0, 0, time.UTC)))
	assert.True(t, gotTo.Equal(gotFrom.AddDate(0, 0, 14)))
	assert.Contains(t, out, "warning: caldav:home unavailable: 401 unauthorized")
	assert.Contains(t, out, booked.ID().String()+"  Tue 2026-03-10 11:00-11:30  clashes with google:primary 11:15-11:30")
	assert.Contains(t, out, "1 conflicts in 3 bookings.")

	_, err = run(t, a, "conflicts", hostID.String(), "--fail")
	assert.EqualError(t, err, "found 1 calendar conflicts")

	report.Conflicts = nil
	out, err = run(t, a, "conflicts", hostID.String(), "--fail")
	require.NoError(t, err)
	assert.Contains(t, out, "No conflicts in 3 bookings.")

	_, err = run(t, &App{}, "conflicts", hostID.String())
	assert.ErrorIs(t, err, errNotConnected)
}

func TestResolveBuildInfo(t *testing.T) {
	embedded := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.25.1",
			Main:      debug.Module{Path: "github.com/felixgeelhaar/slotwise", Version: "v0.4.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "4f2a9c1"},
				{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
			},
		}, true
	}

	info := resolveBuildInfo(embedded)
	assert.Equal(t, buildInfo{Version: "v0.4.0", Commit: "4f2a9c1", BuildDate: "2026-03-01T10:00:00Z", GoVersion: "go1.25.1"}, info)

	missing := resolveBuildInfo(func() (*debug.BuildInfo, bool) { return nil, false })
	assert.Equal(t, "dev", missing.Version)
	assert.Equal(t, "none", missing.Commit)
	assert.NotEmpty(t, missing.GoVersion)

	Version = "v1.0.0"
	t.Cleanup(func() { Version = "dev" })
	assert.Equal(t, "v1.0.0", resolveBuildInfo(embedded).Version, "linker value wins")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, &App{Migrator: &fakeMigrator{version: 4}}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "slotwise ")
	assert.Contains(t, out, "  schema: 4")

	out, err = run(t, nil, "version")
	require.NoError(t, err)
	assert.NotContains(t, out, "schema")
}
