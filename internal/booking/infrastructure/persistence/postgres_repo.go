package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/postgres"
)

// PostgresRepository implements domain.Repository on PostgreSQL.
//
// Reservations for one resource are serialized by a transaction-scoped
// advisory lock, and the bookings_no_overlap exclusion constraint rejects
// any overlapping live footprint that slips past it.
type PostgresRepository struct {
	conn database.Connection
}

// NewPostgresRepository creates a PostgreSQL booking store.
func NewPostgresRepository(conn database.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) InsertIfFree(ctx context.Context, b *domain.Booking) error {
	s := b.Snapshot()
	return sharedApplication.WithUnitOfWork(ctx, database.NewUnitOfWork(r.conn), func(txCtx context.Context) error {
		exec := database.ExecutorFromContext(txCtx, r.conn)
		if _, err := exec.Exec(txCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.ResourceKey); err != nil {
			return mapPostgresError(err, "lock resource")
		}
		res, err := exec.Exec(txCtx, `
			INSERT INTO bookings (`+bookingColumns+`)
			SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::timestamptz, $6::timestamptz,
			       $7::timestamptz, $8::timestamptz, $9::text, $10::text, $11::text,
			       $12::text, $13::uuid, $14::integer, $15::text, $16::integer,
			       $17::timestamptz, $18::timestamptz
			WHERE NOT EXISTS (
				SELECT 1 FROM bookings
				WHERE resource_key = $4
				  AND status IN `+liveStatuses+`
				  AND blocked_start < $8
				  AND blocked_end > $7
			)`,
			s.ID.String(), s.EventTypeID.String(), s.HostID.String(), s.ResourceKey,
			s.Start, s.End, s.BlockedStart, s.BlockedEnd,
			s.Attendee.Name, s.Attendee.Email, s.Attendee.TimeZone,
			string(s.Status), nullGroup(s.RecurrenceGroupID), s.OccurrenceIndex, s.CancellationReason,
			s.Version, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return mapPostgresError(err, "insert booking")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrSlotTaken
		}
		return nil
	})
}

func (r *PostgresRepository) ListBusy(ctx context.Context, resourceKey string, start, end time.Time) ([]availability.BusyInterval, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT blocked_start, blocked_end FROM bookings
		WHERE resource_key = $1
		  AND status IN `+liveStatuses+`
		  AND blocked_start < $2
		  AND blocked_end > $3
		ORDER BY blocked_start`,
		resourceKey, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.BusyInterval
	for rows.Next() {
		var from, to time.Time
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out = append(out, busyInterval(from, to))
	}
	return out, rows.Err()
}

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id.String())
	b, err := scanPostgresBooking(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b, err
}

func (r *PostgresRepository) Update(ctx context.Context, b *domain.Booking) error {
	s := b.Snapshot()
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		UPDATE bookings
		SET status = $1, cancellation_reason = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		string(s.Status), s.CancellationReason, s.UpdatedAt, s.ID.String(), s.Version)
	if err != nil {
		return mapPostgresError(err, "update booking")
	}
	if err := expectOneRow(res, s.ID); err != nil {
		return err
	}
	b.IncrementVersion()
	return nil
}

func (r *PostgresRepository) ListByEventType(ctx context.Context, eventTypeID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE event_type_id = $1 AND start_at < $2 AND end_at > $3
		ORDER BY start_at, id`,
		eventTypeID.String(), to, from)
	if err != nil {
		return nil, err
	}
	return collectPostgres(rows)
}

func (r *PostgresRepository) ListByHost(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE host_id = $1 AND start_at < $2 AND end_at > $3
		ORDER BY start_at, id`,
		hostID.String(), to, from)
	if err != nil {
		return nil, err
	}
	return collectPostgres(rows)
}

func (r *PostgresRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE recurrence_group_id = $1 ORDER BY occurrence_index`,
		groupID.String())
	if err != nil {
		return nil, err
	}
	return collectPostgres(rows)
}

func collectPostgres(rows database.Rows) ([]*domain.Booking, error) {
	defer rows.Close()
	var out []*domain.Booking
	for rows.Next() {
		b, err := scanPostgresBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanPostgresBooking(row database.Row) (*domain.Booking, error) {
	var r bookingRow
	if err := row.Scan(
		&r.ID, &r.EventTypeID, &r.HostID, &r.ResourceKey, &r.Start, &r.End,
		&r.BlockedStart, &r.BlockedEnd, &r.Attendee.Name, &r.Attendee.Email, &r.Attendee.TimeZone,
		&r.Status, &r.GroupID, &r.OccurrenceIndex, &r.CancellationReason,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return r.toDomain()
}

func mapPostgresError(err error, op string) error {
	switch {
	case postgres.ErrorCode(err) == postgres.CodeExclusionViolation:
		return fmt.Errorf("%w: %w", domain.ErrSlotTaken, err)
	case postgres.IsRetryable(err):
		return fmt.Errorf("%w: %w", domain.ErrWriteConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
