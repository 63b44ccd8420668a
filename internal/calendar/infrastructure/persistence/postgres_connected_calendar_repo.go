package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
)

// PostgresConnectedCalendarRepository implements ConnectedCalendarRepository using PostgreSQL.
type PostgresConnectedCalendarRepository struct {
	conn database.Connection
}

// NewPostgresConnectedCalendarRepository creates a new PostgreSQL connected calendar repository.
func NewPostgresConnectedCalendarRepository(conn database.Connection) *PostgresConnectedCalendarRepository {
	return &PostgresConnectedCalendarRepository{conn: conn}
}

func (r *PostgresConnectedCalendarRepository) Save(ctx context.Context, cal *domain.ConnectedCalendar) error {
	row := newCalendarRow(cal)
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO connected_calendars (`+calendarColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_enabled = EXCLUDED.is_enabled,
			is_busy_source = EXCLUDED.is_busy_source,
			is_push_target = EXCLUDED.is_push_target,
			config = EXCLUDED.config,
			credentials = EXCLUDED.credentials,
			version = connected_calendars.version + 1,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.HostID, row.Provider, row.CalendarID, row.Name,
		row.IsEnabled, row.IsBusySource, row.IsPushTarget,
		row.Config, row.Credentials, row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save connected calendar %s: %w", row.ID, err)
	}
	return nil
}

func (r *PostgresConnectedCalendarRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ConnectedCalendar, error) {
	return r.findOne(ctx, `WHERE id = $1`, id.String())
}

func (r *PostgresConnectedCalendarRepository) FindByHostProviderAndCalendar(ctx context.Context, hostID uuid.UUID, provider domain.ProviderType, calendarID string) (*domain.ConnectedCalendar, error) {
	return r.findOne(ctx, `WHERE host_id = $1 AND provider = $2 AND calendar_id = $3`,
		hostID.String(), provider.String(), calendarID)
}

func (r *PostgresConnectedCalendarRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.ConnectedCalendar, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		postgresCalendarSelect+` WHERE host_id = $1 ORDER BY created_at, id`, hostID.String())
	if err != nil {
		return nil, fmt.Errorf("find connected calendars: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConnectedCalendar
	for rows.Next() {
		cal, err := scanPostgresCalendar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	return out, rows.Err()
}

func (r *PostgresConnectedCalendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM connected_calendars WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete connected calendar %s: %w", id, err)
	}
	return deletedOne(res, id)
}

const postgresCalendarSelect = `
	SELECT id::text, host_id::text, provider, calendar_id, name, is_enabled, is_busy_source,
		is_push_target, config::text, credentials, version, created_at, updated_at
	FROM connected_calendars`

func (r *PostgresConnectedCalendarRepository) findOne(ctx context.Context, where string, args ...any) (*domain.ConnectedCalendar, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, postgresCalendarSelect+` `+where, args...)
	cal, err := scanPostgresCalendar(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrCalendarNotFound
	}
	return cal, err
}

func scanPostgresCalendar(row database.Row) (*domain.ConnectedCalendar, error) {
	var r calendarRow
	if err := row.Scan(&r.ID, &r.HostID, &r.Provider, &r.CalendarID, &r.Name,
		&r.IsEnabled, &r.IsBusySource, &r.IsPushTarget,
		&r.Config, &r.Credentials, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}
