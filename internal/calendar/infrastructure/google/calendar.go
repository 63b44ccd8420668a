package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
)

// DefaultCalendarID addresses the account's main calendar.
const DefaultCalendarID = "primary"

// PropBookingID tags events written by the engine.
const PropBookingID = "slotwise_booking_id"

// Scopes are the OAuth scopes needed to read busy time and write events.
var Scopes = []string{
	calendar.CalendarReadonlyScope,
	calendar.CalendarEventsScope,
}

// OAuthConfig returns the OAuth2 client configuration for Google accounts.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}

// Config configures a Calendar.
type Config struct {
	CalendarID  string
	TokenSource oauth2.TokenSource
	// HTTPClient replaces the OAuth client built from TokenSource.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Calendar reads busy time from and writes bookings to one Google calendar.
type Calendar struct {
	calendarID string
	service    *calendar.Service
	logger     *slog.Logger
}

var _ calendarApp.Adapter = (*Calendar)(nil)

// New creates a Calendar client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Calendar, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	client := cfg.HTTPClient
	if client == nil {
		if cfg.TokenSource == nil {
			return nil, errors.New("google calendar: token source not configured")
		}
		client = oauth2.NewClient(ctx, cfg.TokenSource)
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar service: %w", err)
	}
	return &Calendar{calendarID: cfg.CalendarID, service: service, logger: logger}, nil
}

func (c *Calendar) Name() string { return "google:" + c.calendarID }

// BusyBetween queries the FreeBusy API for [start, end).
func (c *Calendar) BusyBetween(ctx context.Context, start, end time.Time) ([]availability.BusyInterval, error) {
	resp, err := c.service.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google freebusy: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("google freebusy: calendar %q missing from response", c.calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("google freebusy: calendar %q: %s", c.calendarID, cal.Errors[0].Reason)
	}

	busy := make([]availability.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		s, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("google freebusy: start %q: %w", p.Start, err)
		}
		e, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("google freebusy: end %q: %w", p.End, err)
		}
		if !e.After(s) {
			continue
		}
		busy = append(busy, availability.BusyInterval{
			Interval: availability.Interval{Start: s.UTC(), End: e.UTC()},
			Source:   c.Name(),
		})
	}
	return busy, nil
}

// CreateEvent inserts the booking. The event id is derived from the booking
// id, so a repeated push answers 409 and is treated as done.
func (c *Calendar) CreateEvent(ctx context.Context, event calendarApp.CalendarEvent) (string, error) {
	id := EventID(event.BookingID)
	ev := &calendar.Event{
		Id:          id,
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: event.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{PropBookingID: event.BookingID.String()},
		},
	}
	if event.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: event.AttendeeEmail, DisplayName: event.AttendeeName}}
	}

	created, err := c.service.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			c.logger.DebugContext(ctx, "google event already exists", "event_id", id)
			return id, nil
		}
		return "", fmt.Errorf("google insert event: %w", err)
	}
	return created.Id, nil
}

// EventID maps a booking id onto Google's base32hex event id alphabet.
func EventID(bookingID uuid.UUID) string {
	return strings.ReplaceAll(bookingID.String(), "-", "")
}
