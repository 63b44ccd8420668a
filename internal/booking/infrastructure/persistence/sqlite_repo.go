package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/sqlite"
)

// SQLiteRepository implements domain.Repository on SQLite. The database
// allows one writer at a time, so the overlap check and the insert cannot
// interleave with another reservation.
type SQLiteRepository struct {
	conn database.Connection
}

// NewSQLiteRepository creates a SQLite booking store.
func NewSQLiteRepository(conn database.Connection) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

func (r *SQLiteRepository) InsertIfFree(ctx context.Context, b *domain.Booking) error {
	s := b.Snapshot()
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings
			WHERE resource_key = ?
			  AND status IN `+liveStatuses+`
			  AND blocked_start < ?
			  AND blocked_end > ?
		)`,
		s.ID.String(), s.EventTypeID.String(), s.HostID.String(), s.ResourceKey,
		sqlite.FormatTime(s.Start), sqlite.FormatTime(s.End),
		sqlite.FormatTime(s.BlockedStart), sqlite.FormatTime(s.BlockedEnd),
		s.Attendee.Name, s.Attendee.Email, s.Attendee.TimeZone,
		string(s.Status), nullGroup(s.RecurrenceGroupID), s.OccurrenceIndex, s.CancellationReason,
		s.Version, sqlite.FormatTime(s.CreatedAt), sqlite.FormatTime(s.UpdatedAt),
		s.ResourceKey, sqlite.FormatTime(s.BlockedEnd), sqlite.FormatTime(s.BlockedStart),
	)
	if err != nil {
		if sqlite.IsBusy(err) {
			return fmt.Errorf("%w: %w", domain.ErrWriteConflict, err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrSlotTaken
	}
	return nil
}

func (r *SQLiteRepository) ListBusy(ctx context.Context, resourceKey string, start, end time.Time) ([]availability.BusyInterval, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT blocked_start, blocked_end FROM bookings
		WHERE resource_key = ?
		  AND status IN `+liveStatuses+`
		  AND blocked_start < ?
		  AND blocked_end > ?
		ORDER BY blocked_start`,
		resourceKey, sqlite.FormatTime(end), sqlite.FormatTime(start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.BusyInterval
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		fromT, err := sqlite.ParseTime(from)
		if err != nil {
			return nil, err
		}
		toT, err := sqlite.ParseTime(to)
		if err != nil {
			return nil, err
		}
		out = append(out, busyInterval(fromT, toT))
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id.String())
	b, err := scanSQLiteBooking(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b, err
}

// Update writes a status change. The row must still carry the version the
// booking was loaded with.
func (r *SQLiteRepository) Update(ctx context.Context, b *domain.Booking) error {
	s := b.Snapshot()
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		UPDATE bookings
		SET status = ?, cancellation_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(s.Status), s.CancellationReason, sqlite.FormatTime(s.UpdatedAt), s.ID.String(), s.Version)
	if err != nil {
		if sqlite.IsBusy(err) {
			return fmt.Errorf("%w: %w", domain.ErrWriteConflict, err)
		}
		return fmt.Errorf("update booking: %w", err)
	}
	if err := expectOneRow(res, s.ID); err != nil {
		return err
	}
	b.IncrementVersion()
	return nil
}

func (r *SQLiteRepository) ListByEventType(ctx context.Context, eventTypeID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE event_type_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		eventTypeID.String(), sqlite.FormatTime(to), sqlite.FormatTime(from))
	if err != nil {
		return nil, err
	}
	return collectSQLite(rows)
}

// ListByHost returns every booking of the host overlapping [from, to),
// across event types.
func (r *SQLiteRepository) ListByHost(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE host_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		hostID.String(), sqlite.FormatTime(to), sqlite.FormatTime(from))
	if err != nil {
		return nil, err
	}
	return collectSQLite(rows)
}

func (r *SQLiteRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Booking, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE recurrence_group_id = ? ORDER BY occurrence_index`,
		groupID.String())
	if err != nil {
		return nil, err
	}
	return collectSQLite(rows)
}

func collectSQLite(rows database.Rows) ([]*domain.Booking, error) {
	defer rows.Close()
	var out []*domain.Booking
	for rows.Next() {
		b, err := scanSQLiteBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanSQLiteBooking(row database.Row) (*domain.Booking, error) {
	var (
		r     bookingRow
		times [6]string
	)
	if err := row.Scan(
		&r.ID, &r.EventTypeID, &r.HostID, &r.ResourceKey, &times[0], &times[1],
		&times[2], &times[3], &r.Attendee.Name, &r.Attendee.Email, &r.Attendee.TimeZone,
		&r.Status, &r.GroupID, &r.OccurrenceIndex, &r.CancellationReason,
		&r.Version, &times[4], &times[5],
	); err != nil {
		return nil, err
	}
	targets := [6]*time.Time{&r.Start, &r.End, &r.BlockedStart, &r.BlockedEnd, &r.CreatedAt, &r.UpdatedAt}
	for i, raw := range times {
		t, err := sqlite.ParseTime(raw)
		if err != nil {
			return nil, err
		}
		*targets[i] = t
	}
	return r.toDomain()
}

func expectOneRow(res database.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %s changed concurrently", domain.ErrWriteConflict, id)
	}
	return nil
}
