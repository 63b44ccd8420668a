package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/sqlite"
)

// SQLiteConnectedCalendarRepository implements ConnectedCalendarRepository using SQLite.
type SQLiteConnectedCalendarRepository struct {
	conn database.Connection
}

// NewSQLiteConnectedCalendarRepository creates a new SQLite connected calendar repository.
func NewSQLiteConnectedCalendarRepository(conn database.Connection) *SQLiteConnectedCalendarRepository {
	return &SQLiteConnectedCalendarRepository{conn: conn}
}

// Save persists a connected calendar (create or update).
func (r *SQLiteConnectedCalendarRepository) Save(ctx context.Context, cal *domain.ConnectedCalendar) error {
	row := newCalendarRow(cal)
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO connected_calendars (`+calendarColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			is_enabled = excluded.is_enabled,
			is_busy_source = excluded.is_busy_source,
			is_push_target = excluded.is_push_target,
			config = excluded.config,
			credentials = excluded.credentials,
			version = connected_calendars.version + 1,
			updated_at = excluded.updated_at`,
		row.ID, row.HostID, row.Provider, row.CalendarID, row.Name,
		row.IsEnabled, row.IsBusySource, row.IsPushTarget,
		row.Config, row.Credentials, row.Version,
		sqlite.FormatTime(row.CreatedAt), sqlite.FormatTime(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save connected calendar %s: %w", row.ID, err)
	}
	return nil
}

func (r *SQLiteConnectedCalendarRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ConnectedCalendar, error) {
	return r.findOne(ctx, `WHERE id = ?`, id.String())
}

func (r *SQLiteConnectedCalendarRepository) FindByHostProviderAndCalendar(ctx context.Context, hostID uuid.UUID, provider domain.ProviderType, calendarID string) (*domain.ConnectedCalendar, error) {
	return r.findOne(ctx, `WHERE host_id = ? AND provider = ? AND calendar_id = ?`,
		hostID.String(), provider.String(), calendarID)
}

func (r *SQLiteConnectedCalendarRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.ConnectedCalendar, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+calendarColumns+` FROM connected_calendars WHERE host_id = ? ORDER BY created_at, id`,
		hostID.String())
	if err != nil {
		return nil, fmt.Errorf("find connected calendars: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConnectedCalendar
	for rows.Next() {
		cal, err := scanSQLiteCalendar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	return out, rows.Err()
}

func (r *SQLiteConnectedCalendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM connected_calendars WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete connected calendar %s: %w", id, err)
	}
	return deletedOne(res, id)
}

func (r *SQLiteConnectedCalendarRepository) findOne(ctx context.Context, where string, args ...any) (*domain.ConnectedCalendar, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+calendarColumns+` FROM connected_calendars `+where, args...)
	cal, err := scanSQLiteCalendar(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrCalendarNotFound
	}
	return cal, err
}

func scanSQLiteCalendar(row database.Row) (*domain.ConnectedCalendar, error) {
	var (
		r                    calendarRow
		createdAt, updatedAt string
		err                  error
	)
	if err := row.Scan(&r.ID, &r.HostID, &r.Provider, &r.CalendarID, &r.Name,
		&r.IsEnabled, &r.IsBusySource, &r.IsPushTarget,
		&r.Config, &r.Credentials, &r.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}

func deletedOne(res database.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCalendarNotFound, id)
	}
	return nil
}
