package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
)

const postgresScheduleSelect = `
	SELECT id, host_id, name, time_zone, rules, overrides, version, created_at, updated_at
	FROM schedules`

// PostgresScheduleRepository implements domain.ScheduleRepository on PostgreSQL.
type PostgresScheduleRepository struct {
	conn database.Connection
}

// NewPostgresScheduleRepository creates a PostgreSQL schedule repository.
func NewPostgresScheduleRepository(conn database.Connection) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{conn: conn}
}

func (r *PostgresScheduleRepository) Save(ctx context.Context, s *domain.Schedule) error {
	row, err := newScheduleRow(s)
	if err != nil {
		return err
	}
	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO schedules (id, host_id, name, time_zone, rules, overrides, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			time_zone = EXCLUDED.time_zone,
			rules = EXCLUDED.rules,
			overrides = EXCLUDED.overrides,
			version = schedules.version + 1,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.HostID, row.Name, row.TimeZone, row.Rules, row.Overrides,
		row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", row.ID, err)
	}
	return nil
}

func (r *PostgresScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, postgresScheduleSelect+` WHERE id = $1`, id.String())
	s, err := scanPostgresSchedule(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrScheduleNotFound, id)
	}
	return s, err
}

func (r *PostgresScheduleRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.Schedule, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		postgresScheduleSelect+` WHERE host_id = $1 ORDER BY created_at, id`, hostID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		s, err := scanPostgresSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPostgresSchedule(row database.Row) (*domain.Schedule, error) {
	var r scheduleRow
	if err := row.Scan(&r.ID, &r.HostID, &r.Name, &r.TimeZone, &r.Rules, &r.Overrides,
		&r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}

const postgresEventTypeSelect = `
	SELECT id, host_id, schedule_id, slug, title,
	       duration_seconds, buffer_before_seconds, buffer_after_seconds,
	       minimum_notice_seconds, granularity_seconds, min_days_ahead, max_days_ahead,
	       recurrence, requires_confirmation, version, created_at, updated_at
	FROM event_types`

// PostgresEventTypeRepository implements domain.EventTypeRepository on PostgreSQL.
type PostgresEventTypeRepository struct {
	conn database.Connection
}

// NewPostgresEventTypeRepository creates a PostgreSQL event type repository.
func NewPostgresEventTypeRepository(conn database.Connection) *PostgresEventTypeRepository {
	return &PostgresEventTypeRepository{conn: conn}
}

func (r *PostgresEventTypeRepository) Save(ctx context.Context, et *domain.EventType) error {
	row, err := newEventTypeRow(et)
	if err != nil {
		return err
	}
	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO event_types (
			id, host_id, schedule_id, slug, title,
			duration_seconds, buffer_before_seconds, buffer_after_seconds,
			minimum_notice_seconds, granularity_seconds, min_days_ahead, max_days_ahead,
			recurrence, requires_confirmation, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			schedule_id = EXCLUDED.schedule_id,
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			duration_seconds = EXCLUDED.duration_seconds,
			buffer_before_seconds = EXCLUDED.buffer_before_seconds,
			buffer_after_seconds = EXCLUDED.buffer_after_seconds,
			minimum_notice_seconds = EXCLUDED.minimum_notice_seconds,
			granularity_seconds = EXCLUDED.granularity_seconds,
			min_days_ahead = EXCLUDED.min_days_ahead,
			max_days_ahead = EXCLUDED.max_days_ahead,
			recurrence = EXCLUDED.recurrence,
			requires_confirmation = EXCLUDED.requires_confirmation,
			version = event_types.version + 1,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.HostID, row.ScheduleID, row.Slug, row.Title,
		row.DurationSeconds, row.BufferBeforeSeconds, row.BufferAfterSeconds,
		row.MinimumNoticeSeconds, row.GranularitySeconds, row.MinDaysAhead, row.MaxDaysAhead,
		row.Recurrence, row.RequiresConfirmation, row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save event type %s: %w", row.ID, err)
	}
	return nil
}

func (r *PostgresEventTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.EventType, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, postgresEventTypeSelect+` WHERE id = $1`, id.String())
	et, err := scanPostgresEventType(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventTypeNotFound, id)
	}
	return et, err
}

func (r *PostgresEventTypeRepository) FindBySlug(ctx context.Context, hostID uuid.UUID, slug string) (*domain.EventType, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		postgresEventTypeSelect+` WHERE host_id = $1 AND slug = $2`, hostID.String(), strings.TrimSpace(slug))
	et, err := scanPostgresEventType(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventTypeNotFound, slug)
	}
	return et, err
}

func (r *PostgresEventTypeRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.EventType, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		postgresEventTypeSelect+` WHERE host_id = $1 ORDER BY slug`, hostID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EventType
	for rows.Next() {
		et, err := scanPostgresEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func scanPostgresEventType(row database.Row) (*domain.EventType, error) {
	var r eventTypeRow
	if err := row.Scan(
		&r.ID, &r.HostID, &r.ScheduleID, &r.Slug, &r.Title,
		&r.DurationSeconds, &r.BufferBeforeSeconds, &r.BufferAfterSeconds,
		&r.MinimumNoticeSeconds, &r.GranularitySeconds, &r.MinDaysAhead, &r.MaxDaysAhead,
		&r.Recurrence, &r.RequiresConfirmation, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return r.toDomain()
}

// NewScheduleRepository picks the implementation for the connection's driver.
func NewScheduleRepository(conn database.Connection) domain.ScheduleRepository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresScheduleRepository(conn)
	}
	return NewSQLiteScheduleRepository(conn)
}

// NewEventTypeRepository picks the implementation for the connection's driver.
func NewEventTypeRepository(conn database.Connection) domain.EventTypeRepository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresEventTypeRepository(conn)
	}
	return NewSQLiteEventTypeRepository(conn)
}
