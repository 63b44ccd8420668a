package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var (
	ErrEmptyHostID      = fmt.Errorf("%w: host id cannot be empty", sharedDomain.ErrInvalidInput)
	ErrInvalidProvider  = fmt.Errorf("%w: invalid provider type", sharedDomain.ErrInvalidInput)
	ErrEmptyCalendarID  = fmt.Errorf("%w: calendar id cannot be empty", sharedDomain.ErrInvalidInput)
	ErrEmptyName        = fmt.Errorf("%w: calendar name cannot be empty", sharedDomain.ErrInvalidInput)
	ErrCalendarNotFound = fmt.Errorf("%w: connected calendar", sharedDomain.ErrNotFound)
)

// Provider-specific configuration keys.
const (
	ConfigCalDAVURL      = "caldav_url"
	ConfigCalDAVUsername = "caldav_username"
)

// ConnectedCalendar is an external calendar a host has linked. A calendar
// can report busy time, receive pushed bookings, or both.
type ConnectedCalendar struct {
	sharedDomain.BaseAggregateRoot
	hostID       uuid.UUID
	provider     ProviderType
	calendarID   string // provider-side id, e.g. "primary" or a CalDAV path
	name         string
	isEnabled    bool
	isBusySource bool
	isPushTarget bool
	config       map[string]string
	credentials  []byte // sealed; only the application layer can open it
}

// NewConnectedCalendar creates an enabled busy-source calendar and records a
// CalendarConnected event.
func NewConnectedCalendar(hostID uuid.UUID, provider ProviderType, calendarID, name string, now time.Time) (*ConnectedCalendar, error) {
	if hostID == uuid.Nil {
		return nil, ErrEmptyHostID
	}
	if !provider.IsValid() {
		return nil, ErrInvalidProvider
	}
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return nil, ErrEmptyCalendarID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	c := &ConnectedCalendar{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		hostID:            hostID,
		provider:          provider,
		calendarID:        calendarID,
		name:              name,
		isEnabled:         true,
		isBusySource:      true,
		config:            make(map[string]string),
	}
	c.AddDomainEvent(NewCalendarConnected(c, now))
	return c, nil
}

func (c *ConnectedCalendar) HostID() uuid.UUID      { return c.hostID }
func (c *ConnectedCalendar) Provider() ProviderType { return c.provider }
func (c *ConnectedCalendar) CalendarID() string     { return c.calendarID }
func (c *ConnectedCalendar) Name() string           { return c.name }
func (c *ConnectedCalendar) IsEnabled() bool        { return c.isEnabled }
func (c *ConnectedCalendar) IsBusySource() bool     { return c.isBusySource }
func (c *ConnectedCalendar) IsPushTarget() bool     { return c.isPushTarget }
func (c *ConnectedCalendar) Credentials() []byte    { return c.credentials }

// SourceName labels busy time and warnings coming from this calendar.
func (c *ConnectedCalendar) SourceName() string {
	return c.provider.String() + ":" + c.calendarID
}

// ConsultForBusyTime reports whether availability must include this calendar.
func (c *ConnectedCalendar) ConsultForBusyTime() bool { return c.isEnabled && c.isBusySource }

// ReceivesBookings reports whether accepted bookings are pushed here.
func (c *ConnectedCalendar) ReceivesBookings() bool { return c.isEnabled && c.isPushTarget }

// Config returns a copy of the provider configuration.
func (c *ConnectedCalendar) Config() map[string]string {
	return maps.Clone(c.config)
}

// ConfigValue returns one configuration value, or "".
func (c *ConnectedCalendar) ConfigValue(key string) string {
	return c.config[key]
}

// ConfigJSON encodes the configuration for persistence.
func (c *ConnectedCalendar) ConfigJSON() string {
	if len(c.config) == 0 {
		return "{}"
	}
	data, err := json.Marshal(c.config)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (c *ConnectedCalendar) CalDAVURL() string      { return c.ConfigValue(ConfigCalDAVURL) }
func (c *ConnectedCalendar) CalDAVUsername() string { return c.ConfigValue(ConfigCalDAVUsername) }

// SetConfig stores a provider configuration value.
func (c *ConnectedCalendar) SetConfig(key, value string, now time.Time) {
	if c.config == nil {
		c.config = make(map[string]string)
	}
	if c.config[key] == value {
		return
	}
	c.config[key] = value
	c.changed(now, "config")
}

// SetCredentials replaces the sealed credentials blob.
func (c *ConnectedCalendar) SetCredentials(sealed []byte, now time.Time) {
	c.credentials = sealed
	c.Touch(now)
}

// Rename changes the display name.
func (c *ConnectedCalendar) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if name != c.name {
		c.name = name
		c.changed(now, "name")
	}
	return nil
}

// SetEnabled turns the whole connection on or off.
func (c *ConnectedCalendar) SetEnabled(enabled bool, now time.Time) {
	if c.isEnabled != enabled {
		c.isEnabled = enabled
		c.changed(now, "enabled")
	}
}

// SetBusySource controls whether the calendar blocks availability.
func (c *ConnectedCalendar) SetBusySource(busy bool, now time.Time) {
	if c.isBusySource != busy {
		c.isBusySource = busy
		c.changed(now, "busy_source")
	}
}

// SetPushTarget controls whether accepted bookings are written here.
func (c *ConnectedCalendar) SetPushTarget(push bool, now time.Time) {
	if c.isPushTarget != push {
		c.isPushTarget = push
		c.changed(now, "push_target")
	}
}

// MarkDisconnected records that the connection is being removed.
func (c *ConnectedCalendar) MarkDisconnected(now time.Time) {
	c.AddDomainEvent(NewCalendarDisconnected(c, now))
}

func (c *ConnectedCalendar) changed(now time.Time, field string) {
	c.Touch(now)
	c.AddDomainEvent(NewCalendarUpdated(c, []string{field}, now))
}

// RehydrateConnectedCalendar rebuilds a calendar from storage without
// recording events.
func RehydrateConnectedCalendar(
	id, hostID uuid.UUID,
	provider ProviderType,
	calendarID, name string,
	isEnabled, isBusySource, isPushTarget bool,
	configJSON string,
	credentials []byte,
	createdAt, updatedAt time.Time,
	version int,
) *ConnectedCalendar {
	config := make(map[string]string)
	if configJSON != "" && configJSON != "{}" {
		_ = json.Unmarshal([]byte(configJSON), &config)
	}
	entity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &ConnectedCalendar{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, version),
		hostID:            hostID,
		provider:          provider,
		calendarID:        calendarID,
		name:              name,
		isEnabled:         isEnabled,
		isBusySource:      isBusySource,
		isPushTarget:      isPushTarget,
		config:            config,
		credentials:       credentials,
	}
}
