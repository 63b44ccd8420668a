package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	availabilityPersistence "github.com/felixgeelhaar/slotwise/internal/availability/infrastructure/persistence"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var ada = domain.Attendee{Name: "Ada Lovelace", Email: "ada@example.com"}

func slotAt(t time.Time) availability.CandidateSlot {
	return availability.CandidateSlot{Start: t, End: t.Add(30 * time.Minute)}
}

type fixture struct {
	conn      database.Connection
	bookings  domain.Repository
	outbox    outbox.Repository
	eventType *availability.EventType
	metrics   *observability.InMemoryMetrics
}

func newFixture(t *testing.T, modify ...func(p *availability.EventTypeParams)) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "reserve.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn, nil))

	host := uuid.New()
	schedule, err := availability.NewSchedule(host, "Office hours", "UTC", now)
	require.NoError(t, err)
	params := availability.EventTypeParams{
		HostID:      host,
		ScheduleID:  schedule.ID(),
		Slug:        "review",
		Title:       "Review",
		Duration:    30 * time.Minute,
		BufferAfter: 15 * time.Minute,
	}
	for _, m := range modify {
		m(&params)
	}
	et, err := availability.NewEventType(params, now)
	require.NoError(t, err)
	require.NoError(t, availabilityPersistence.NewScheduleRepository(conn).Save(ctx, schedule))
	require.NoError(t, availabilityPersistence.NewEventTypeRepository(conn).Save(ctx, et))

	return &fixture{
		conn:      conn,
		bookings:  persistence.NewRepository(conn),
		outbox:    outbox.NewRepository(conn, sharedDomain.FixedClock(now)),
		eventType: et,
		metrics:   observability.NewInMemoryMetrics(),
	}
}

func (f *fixture) reserver(cfg services.ReserverConfig, opts ...func(r *reserverDeps)) *services.Reserver {
	deps := reserverDeps{bookings: f.bookings}
	for _, o := range opts {
		o(&deps)
	}
	return services.NewReserver(
		deps.bookings,
		f.outbox,
		database.NewUnitOfWork(f.conn),
		deps.locker,
		sharedDomain.FixedClock(now),
		cfg,
		nil,
		f.metrics,
	)
}

type reserverDeps struct {
	bookings domain.Repository
	locker   services.Locker
}

func fastConfig() services.ReserverConfig {
	return services.ReserverConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		Timeout:     2 * time.Second,
	}
}

// conflictingRepo fails the first n inserts with a transient conflict.
type conflictingRepo struct {
	domain.Repository
	failures int
	calls    int
}

func (r *conflictingRepo) InsertIfFree(ctx context.Context, b *domain.Booking) error {
	r.calls++
	if r.calls <= r.failures {
		return domain.ErrWriteConflict
	}
	return r.Repository.InsertIfFree(ctx, b)
}

// slowRepo inserts and then stalls until the reservation deadline passes.
type slowRepo struct {
	domain.Repository
}

func (r slowRepo) InsertIfFree(ctx context.Context, b *domain.Booking) error {
	if err := r.Repository.InsertIfFree(ctx, b); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
