package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/sqlite"
)

const sqliteScheduleColumns = `id, host_id, name, time_zone, rules, overrides, version, created_at, updated_at`

// SQLiteScheduleRepository implements domain.ScheduleRepository on SQLite.
type SQLiteScheduleRepository struct {
	conn database.Connection
}

// NewSQLiteScheduleRepository creates a SQLite schedule repository.
func NewSQLiteScheduleRepository(conn database.Connection) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{conn: conn}
}

// Save inserts or replaces the schedule.
func (r *SQLiteScheduleRepository) Save(ctx context.Context, s *domain.Schedule) error {
	row, err := newScheduleRow(s)
	if err != nil {
		return err
	}
	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO schedules (`+sqliteScheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			time_zone = excluded.time_zone,
			rules = excluded.rules,
			overrides = excluded.overrides,
			version = schedules.version + 1,
			updated_at = excluded.updated_at`,
		row.ID, row.HostID, row.Name, row.TimeZone,
		string(row.Rules), string(row.Overrides), row.Version,
		sqlite.FormatTime(row.CreatedAt), sqlite.FormatTime(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", row.ID, err)
	}
	return nil
}

// FindByID returns domain.ErrScheduleNotFound when no row matches.
func (r *SQLiteScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+sqliteScheduleColumns+` FROM schedules WHERE id = ?`, id.String())
	s, err := scanSQLiteSchedule(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrScheduleNotFound, id)
	}
	return s, err
}

func (r *SQLiteScheduleRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.Schedule, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+sqliteScheduleColumns+` FROM schedules WHERE host_id = ? ORDER BY created_at, id`, hostID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		s, err := scanSQLiteSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSQLiteSchedule(row database.Row) (*domain.Schedule, error) {
	var (
		r                    scheduleRow
		rules, overrides     string
		createdAt, updatedAt string
		err                  error
	)
	if err := row.Scan(&r.ID, &r.HostID, &r.Name, &r.TimeZone, &rules, &overrides, &r.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Rules, r.Overrides = []byte(rules), []byte(overrides)
	if r.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}

const sqliteEventTypeColumns = `id, host_id, schedule_id, slug, title,
	duration_seconds, buffer_before_seconds, buffer_after_seconds,
	minimum_notice_seconds, granularity_seconds, min_days_ahead, max_days_ahead,
	recurrence, requires_confirmation, version, created_at, updated_at`

// SQLiteEventTypeRepository implements domain.EventTypeRepository on SQLite.
type SQLiteEventTypeRepository struct {
	conn database.Connection
}

// NewSQLiteEventTypeRepository creates a SQLite event type repository.
func NewSQLiteEventTypeRepository(conn database.Connection) *SQLiteEventTypeRepository {
	return &SQLiteEventTypeRepository{conn: conn}
}

func (r *SQLiteEventTypeRepository) Save(ctx context.Context, et *domain.EventType) error {
	row, err := newEventTypeRow(et)
	if err != nil {
		return err
	}
	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO event_types (`+sqliteEventTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			schedule_id = excluded.schedule_id,
			slug = excluded.slug,
			title = excluded.title,
			duration_seconds = excluded.duration_seconds,
			buffer_before_seconds = excluded.buffer_before_seconds,
			buffer_after_seconds = excluded.buffer_after_seconds,
			minimum_notice_seconds = excluded.minimum_notice_seconds,
			granularity_seconds = excluded.granularity_seconds,
			min_days_ahead = excluded.min_days_ahead,
			max_days_ahead = excluded.max_days_ahead,
			recurrence = excluded.recurrence,
			requires_confirmation = excluded.requires_confirmation,
			version = event_types.version + 1,
			updated_at = excluded.updated_at`,
		row.ID, row.HostID, row.ScheduleID, row.Slug, row.Title,
		row.DurationSeconds, row.BufferBeforeSeconds, row.BufferAfterSeconds,
		row.MinimumNoticeSeconds, row.GranularitySeconds, row.MinDaysAhead, row.MaxDaysAhead,
		string(row.Recurrence), row.RequiresConfirmation, row.Version,
		sqlite.FormatTime(row.CreatedAt), sqlite.FormatTime(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save event type %s: %w", row.ID, err)
	}
	return nil
}

// FindByID returns domain.ErrEventTypeNotFound when no row matches.
func (r *SQLiteEventTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.EventType, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+sqliteEventTypeColumns+` FROM event_types WHERE id = ?`, id.String())
	et, err := scanSQLiteEventType(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventTypeNotFound, id)
	}
	return et, err
}

func (r *SQLiteEventTypeRepository) FindBySlug(ctx context.Context, hostID uuid.UUID, slug string) (*domain.EventType, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+sqliteEventTypeColumns+` FROM event_types WHERE host_id = ? AND slug = ?`,
		hostID.String(), strings.TrimSpace(slug))
	et, err := scanSQLiteEventType(row)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventTypeNotFound, slug)
	}
	return et, err
}

func (r *SQLiteEventTypeRepository) FindByHost(ctx context.Context, hostID uuid.UUID) ([]*domain.EventType, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+sqliteEventTypeColumns+` FROM event_types WHERE host_id = ? ORDER BY slug`, hostID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EventType
	for rows.Next() {
		et, err := scanSQLiteEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func scanSQLiteEventType(row database.Row) (*domain.EventType, error) {
	var (
		r                    eventTypeRow
		recurrence           string
		createdAt, updatedAt string
		err                  error
	)
	if err := row.Scan(
		&r.ID, &r.HostID, &r.ScheduleID, &r.Slug, &r.Title,
		&r.DurationSeconds, &r.BufferBeforeSeconds, &r.BufferAfterSeconds,
		&r.MinimumNoticeSeconds, &r.GranularitySeconds, &r.MinDaysAhead, &r.MaxDaysAhead,
		&recurrence, &r.RequiresConfirmation, &r.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.Recurrence = []byte(recurrence)
	if r.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return r.toDomain()
}
