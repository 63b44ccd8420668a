package persistence

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
)

const calendarColumns = `id, host_id, provider, calendar_id, name, is_enabled, is_busy_source,
	is_push_target, config, credentials, version, created_at, updated_at`

type calendarRow struct {
	ID           string
	HostID       string
	Provider     string
	CalendarID   string
	Name         string
	IsEnabled    bool
	IsBusySource bool
	IsPushTarget bool
	Config       string
	Credentials  string // base64 of the sealed blob
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func newCalendarRow(c *domain.ConnectedCalendar) calendarRow {
	return calendarRow{
		ID:           c.ID().String(),
		HostID:       c.HostID().String(),
		Provider:     c.Provider().String(),
		CalendarID:   c.CalendarID(),
		Name:         c.Name(),
		IsEnabled:    c.IsEnabled(),
		IsBusySource: c.IsBusySource(),
		IsPushTarget: c.IsPushTarget(),
		Config:       c.ConfigJSON(),
		Credentials:  base64.StdEncoding.EncodeToString(c.Credentials()),
		Version:      c.Version(),
		CreatedAt:    c.CreatedAt(),
		UpdatedAt:    c.UpdatedAt(),
	}
}

func (r calendarRow) toDomain() (*domain.ConnectedCalendar, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("connected calendar id: %w", err)
	}
	hostID, err := uuid.Parse(r.HostID)
	if err != nil {
		return nil, fmt.Errorf("connected calendar %s host id: %w", r.ID, err)
	}
	var sealed []byte
	if r.Credentials != "" {
		if sealed, err = base64.StdEncoding.DecodeString(r.Credentials); err != nil {
			return nil, fmt.Errorf("connected calendar %s credentials: %w", r.ID, err)
		}
	}
	return domain.RehydrateConnectedCalendar(
		id, hostID, domain.ProviderType(r.Provider), r.CalendarID, r.Name,
		r.IsEnabled, r.IsBusySource, r.IsPushTarget,
		r.Config, sealed, r.CreatedAt, r.UpdatedAt, r.Version,
	), nil
}
