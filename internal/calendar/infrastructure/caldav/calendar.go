package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// PropXBooking marks events written by the engine and carries the booking id.
const PropXBooking = "X-SLOTWISE-BOOKING"

const propTransparency = "TRANSP"

// Config configures a Calendar.
type Config struct {
	BaseURL  string
	Username string
	// Password is an app-specific password for iCloud.
	Password string
	// CalendarPath selects a collection; empty means the first calendar
	// in the user's home set.
	CalendarPath string
	HTTPClient   *http.Client
	Clock        sharedDomain.Clock
}

// Calendar reads busy time from and writes bookings to a CalDAV collection
// (Apple Calendar, Fastmail, Nextcloud, etc.).
type Calendar struct {
	client *caldav.Client
	clock  sharedDomain.Clock
	logger *slog.Logger

	mu   sync.Mutex
	path string
}

var _ calendarApp.Adapter = (*Calendar)(nil)

// New creates a CalDAV calendar client.
func New(cfg Config, logger *slog.Logger) (*Calendar, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("caldav: base URL not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return &Calendar{
		client: client,
		clock:  cfg.Clock,
		logger: logger,
		path:   collectionPath(cfg.CalendarPath),
	}, nil
}

func (c *Calendar) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return "caldav:default"
	}
	return "caldav:" + c.path
}

// BusyBetween runs a time-range calendar-query. Transparent and cancelled
// events are ignored and recurring events are expanded locally.
func (c *Calendar) BusyBetween(ctx context.Context, start, end time.Time) ([]availability.BusyInterval, error) {
	calPath, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name: "VEVENT",
				Props: []string{
					"UID", "DTSTART", "DTEND", "DURATION", "RRULE", "RDATE", "EXDATE",
					"RECURRENCE-ID", "STATUS", propTransparency,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	name := c.Name()
	var busy []availability.BusyInterval
	for i := range objects {
		intervals, err := busyFromObject(&objects[i], start, end)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping unreadable caldav object", "path", objects[i].Path, "error", err)
			continue
		}
		for _, iv := range intervals {
			busy = append(busy, availability.BusyInterval{Interval: iv, Source: name})
		}
	}
	return busy, nil
}

// CreateEvent PUTs the booking to <collection>/<booking id>.ics. A repeated
// push overwrites the same resource.
func (c *Calendar) CreateEvent(ctx context.Context, event calendarApp.CalendarEvent) (string, error) {
	calPath, err := c.calendarPath(ctx)
	if err != nil {
		return "", err
	}
	eventPath := fmt.Sprintf("%s%s.ics", calPath, event.BookingID.String())
	if _, err := c.client.PutCalendarObject(ctx, eventPath, toICalendar(event, c.clock.Now())); err != nil {
		return "", fmt.Errorf("put calendar object: %w", err)
	}
	return event.BookingID.String(), nil
}

// ListCalendars returns the collections in the user's calendar home set.
func (c *Calendar) ListCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}
	return cals, nil
}

func (c *Calendar) calendarPath(ctx context.Context) (string, error) {
	c.mu.Lock()
	path := c.path
	c.mu.Unlock()
	if path != "" {
		return path, nil
	}

	cals, err := c.ListCalendars(ctx)
	if err != nil {
		return "", err
	}
	if len(cals) == 0 {
		return "", errors.New("no calendars found")
	}

	c.mu.Lock()
	c.path = collectionPath(cals[0].Path)
	path = c.path
	c.mu.Unlock()
	return path, nil
}

func collectionPath(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// busyFromObject returns the blocking intervals of one calendar resource
// that overlap [start, end).
func busyFromObject(obj *caldav.CalendarObject, start, end time.Time) ([]availability.Interval, error) {
	if obj == nil || obj.Data == nil {
		return nil, nil
	}

	var masters []*ical.Event
	var overrides []*ical.Event
	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		ev := &ical.Event{Component: child}
		if ev.Props.Get(ical.PropRecurrenceID) != nil {
			overrides = append(overrides, ev)
		} else {
			masters = append(masters, ev)
		}
	}

	overridden := make(map[time.Time]struct{}, len(overrides))
	var out []availability.Interval
	for _, ev := range overrides {
		rid, err := ev.Props.Get(ical.PropRecurrenceID).DateTime(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("recurrence id: %w", err)
		}
		overridden[rid.UTC()] = struct{}{}
		if !blocksTime(ev) {
			continue
		}
		iv, err := eventInterval(ev)
		if err != nil {
			return nil, err
		}
		if iv.Overlaps(availability.Interval{Start: start, End: end}) {
			out = append(out, iv)
		}
	}

	window := availability.Interval{Start: start, End: end}
	for _, ev := range masters {
		if !blocksTime(ev) {
			continue
		}
		first, err := eventInterval(ev)
		if err != nil {
			return nil, err
		}
		set, err := ev.RecurrenceSet(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("recurrence set: %w", err)
		}
		if set == nil {
			if first.Overlaps(window) {
				out = append(out, first)
			}
			continue
		}

		dur := first.Duration()
		for _, occ := range set.Between(start.Add(-dur), end, true) {
			occ = occ.UTC()
			if _, ok := overridden[occ]; ok {
				continue
			}
			iv := availability.Interval{Start: occ, End: occ.Add(dur)}
			if iv.Overlaps(window) {
				out = append(out, iv)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func eventInterval(ev *ical.Event) (availability.Interval, error) {
	s, err := ev.DateTimeStart(time.UTC)
	if err != nil {
		return availability.Interval{}, fmt.Errorf("dtstart: %w", err)
	}
	e, err := ev.DateTimeEnd(time.UTC)
	if err != nil {
		return availability.Interval{}, fmt.Errorf("dtend: %w", err)
	}
	if !e.After(s) {
		e = s
	}
	return availability.Interval{Start: s.UTC(), End: e.UTC()}, nil
}

// blocksTime reports whether the event occupies time. TRANSP:TRANSPARENT
// marks "show as free".
func blocksTime(ev *ical.Event) bool {
	if p := ev.Props.Get(propTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return false
	}
	if p := ev.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return false
	}
	return true
}

// toICalendar converts a booking to an ical.Calendar.
func toICalendar(e calendarApp.CalendarEvent, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Slotwise//Booking Engine//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, e.BookingID.String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, e.End.UTC())
	event.Props.SetText(ical.PropSummary, e.Summary)
	if e.Description != "" {
		event.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.AttendeeEmail != "" {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + e.AttendeeEmail
		if e.AttendeeName != "" {
			attendee.Params.Set("CN", e.AttendeeName)
		}
		event.Props[ical.PropAttendee] = []ical.Prop{*attendee}
	}

	marker := ical.NewProp(PropXBooking)
	marker.Value = e.BookingID.String()
	event.Props[PropXBooking] = []ical.Prop{*marker}

	cal.Children = append(cal.Children, event.Component)
	return cal
}
