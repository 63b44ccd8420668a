package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// DefaultCalendarID addresses the mailbox's default calendar.
const DefaultCalendarID = "primary"

const graphTimeLayout = "2006-01-02T15:04:05"

// Default scopes for Microsoft Calendar API
var DefaultScopes = []string{
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// OAuthConfig returns the OAuth2 client configuration for a tenant.
// An empty tenant means "common".
func OAuthConfig(clientID, clientSecret, redirectURL, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       DefaultScopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}
}

// Config configures a Calendar.
type Config struct {
	CalendarID  string
	TokenSource oauth2.TokenSource
	BaseURL     string
	// Timeout bounds each Graph request; zero means 15s.
	Timeout time.Duration
}

// Calendar reads busy time from and writes bookings to an Outlook calendar
// through Microsoft Graph.
type Calendar struct {
	calendarID string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

var _ calendarApp.Adapter = (*Calendar)(nil)

// New creates a Calendar client.
func New(cfg Config, logger *slog.Logger) (*Calendar, error) {
	if cfg.TokenSource == nil {
		return nil, errors.New("microsoft calendar: token source not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Calendar{
		calendarID: cfg.CalendarID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: cfg.TokenSource,
			},
		},
		logger: logger,
	}, nil
}

func (c *Calendar) Name() string { return "microsoft:" + c.calendarID }

// BusyBetween lists the calendar view for [start, end). Free and cancelled
// events do not block time.
func (c *Calendar) BusyBetween(ctx context.Context, start, end time.Time) ([]availability.BusyInterval, error) {
	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(graphTimeLayout))
	params.Set("endDateTime", end.UTC().Format(graphTimeLayout))
	params.Set("$select", "showAs,isCancelled,start,end")
	params.Set("$top", "100")
	next := c.calendarURL("calendarView") + "?" + params.Encode()

	var busy []availability.BusyInterval
	for next != "" {
		page, err := c.viewPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			if item.IsCancelled || item.ShowAs == "free" {
				continue
			}
			s, err := parseGraphTime(item.Start)
			if err != nil {
				return nil, err
			}
			e, err := parseGraphTime(item.End)
			if err != nil {
				return nil, err
			}
			if !e.After(s) {
				continue
			}
			busy = append(busy, availability.BusyInterval{
				Interval: availability.Interval{Start: s, End: e},
				Source:   c.Name(),
			})
		}
		next = page.NextLink
	}
	return busy, nil
}

type viewPage struct {
	Value    []msEvent `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

func (c *Calendar) viewPage(ctx context.Context, pageURL string) (*viewPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}
	var page viewPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode calendar view: %w", err)
	}
	return &page, nil
}

// CreateEvent posts the booking. The booking id is sent as transactionId so
// Graph drops a repeated push.
func (c *Calendar) CreateEvent(ctx context.Context, event calendarApp.CalendarEvent) (string, error) {
	body, err := json.Marshal(toMicrosoftEvent(event))
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.calendarURL("events"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		c.logger.DebugContext(ctx, "microsoft event already exists", "booking_id", event.BookingID)
		return event.BookingID.String(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError(resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created event: %w", err)
	}
	return created.ID, nil
}

func (c *Calendar) calendarURL(collection string) string {
	if c.calendarID == DefaultCalendarID {
		return fmt.Sprintf("%s/me/%s", c.baseURL, collection)
	}
	return fmt.Sprintf("%s/me/calendars/%s/%s", c.baseURL, url.PathEscape(c.calendarID), collection)
}

// Microsoft Graph API event types

type msEvent struct {
	ID            string       `json:"id,omitempty"`
	TransactionID string       `json:"transactionId,omitempty"`
	Subject       string       `json:"subject,omitempty"`
	Body          *msBody      `json:"body,omitempty"`
	Start         msDateTime   `json:"start"`
	End           msDateTime   `json:"end"`
	ShowAs        string       `json:"showAs,omitempty"`
	IsCancelled   bool         `json:"isCancelled,omitempty"`
	Attendees     []msAttendee `json:"attendees,omitempty"`
}

type msBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type msDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type msAttendee struct {
	Type         string         `json:"type,omitempty"`
	EmailAddress msEmailAddress `json:"emailAddress"`
}

type msEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

func toMicrosoftEvent(event calendarApp.CalendarEvent) msEvent {
	ev := msEvent{
		TransactionID: transactionID(event.BookingID),
		Subject:       event.Summary,
		Body:          &msBody{ContentType: "text", Content: event.Description},
		Start:         msDateTime{DateTime: event.Start.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:           msDateTime{DateTime: event.End.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		ShowAs:        "busy",
	}
	if event.AttendeeEmail != "" {
		ev.Attendees = []msAttendee{{
			Type:         "required",
			EmailAddress: msEmailAddress{Name: event.AttendeeName, Address: event.AttendeeEmail},
		}}
	}
	return ev
}

func transactionID(bookingID uuid.UUID) string {
	return "slotwise-" + bookingID.String()
}

// parseGraphTime reads a Graph dateTime. Graph omits the zone offset and
// sends up to seven fractional digits.
func parseGraphTime(dt msDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			return time.Time{}, fmt.Errorf("graph time zone %q: %w", dt.TimeZone, err)
		}
		loc = l
	}
	t, err := time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("graph date time %q: %w", dt.DateTime, err)
	}
	return t.UTC(), nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("microsoft calendar API failed: status=%d body=%s", resp.StatusCode, string(body))
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}
