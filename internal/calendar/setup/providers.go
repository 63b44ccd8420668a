package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/slotwise/internal/calendar/application"
	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	"github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/caldav"
	googleCal "github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/google"
	microsoftCal "github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/microsoft"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// ErrMissingCredentials is returned when a calendar has no stored login.
var ErrMissingCredentials = errors.New("calendar credentials missing")

// ProviderConfig holds configuration for creating provider factories.
type ProviderConfig struct {
	// Google and Microsoft enable the OAuth providers; nil leaves them
	// unregistered.
	Google    *oauth2.Config
	Microsoft *oauth2.Config
	CalDAV    bool

	// Endpoint overrides, used against local fakes.
	GoogleEndpoint   string
	MicrosoftBaseURL string

	Clock  sharedDomain.Clock
	Logger *slog.Logger
}

// RegisterProviders registers all available calendar providers with the registry.
func RegisterProviders(registry *application.ProviderRegistry, config ProviderConfig) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.Google != nil {
		registry.RegisterAdapter(domain.ProviderGoogle, func(ctx context.Context, cal *domain.ConnectedCalendar, creds application.Credentials) (application.Adapter, error) {
			ts, err := tokenSource(ctx, config.Google, creds)
			if err != nil {
				return nil, err
			}
			adapter, err := googleCal.New(ctx, googleCal.Config{
				CalendarID:  cal.CalendarID(),
				TokenSource: ts,
				Endpoint:    config.GoogleEndpoint,
			}, logger)
			if err != nil {
				return nil, err
			}
			return adapter, nil
		})
		logger.Debug("registered Google Calendar provider")
	}

	if config.Microsoft != nil {
		registry.RegisterAdapter(domain.ProviderMicrosoft, func(ctx context.Context, cal *domain.ConnectedCalendar, creds application.Credentials) (application.Adapter, error) {
			ts, err := tokenSource(ctx, config.Microsoft, creds)
			if err != nil {
				return nil, err
			}
			adapter, err := microsoftCal.New(microsoftCal.Config{
				CalendarID:  cal.CalendarID(),
				TokenSource: ts,
				BaseURL:     config.MicrosoftBaseURL,
			}, logger)
			if err != nil {
				return nil, err
			}
			return adapter, nil
		})
		logger.Debug("registered Microsoft Calendar provider")
	}

	if config.CalDAV {
		// Apple Calendar (iCloud)
		registry.RegisterAdapter(domain.ProviderApple, func(ctx context.Context, cal *domain.ConnectedCalendar, creds application.Credentials) (application.Adapter, error) {
			baseURL := caldav.AppleCalDAVURL
			if url := cal.CalDAVURL(); url != "" {
				baseURL = url
			}
			return newCalDAV(cal, creds, baseURL, config.Clock, logger)
		})
		logger.Debug("registered Apple Calendar provider")

		// Generic CalDAV (Fastmail, Nextcloud, etc.)
		registry.RegisterAdapter(domain.ProviderCalDAV, func(ctx context.Context, cal *domain.ConnectedCalendar, creds application.Credentials) (application.Adapter, error) {
			baseURL := cal.CalDAVURL()
			if baseURL == "" {
				return nil, fmt.Errorf("CalDAV URL not configured")
			}
			return newCalDAV(cal, creds, baseURL, config.Clock, logger)
		})
		logger.Debug("registered CalDAV provider")
	}
}

func tokenSource(ctx context.Context, cfg *oauth2.Config, creds application.Credentials) (oauth2.TokenSource, error) {
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, ErrMissingCredentials
	}
	return cfg.TokenSource(ctx, creds.Token()), nil
}

func newCalDAV(cal *domain.ConnectedCalendar, creds application.Credentials, baseURL string, clock sharedDomain.Clock, logger *slog.Logger) (application.Adapter, error) {
	username := creds.Username
	if username == "" {
		username = cal.CalDAVUsername()
	}
	if username == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}

	path := cal.CalendarID()
	if path == "primary" || path == "default" {
		path = ""
	}
	adapter, err := caldav.New(caldav.Config{
		BaseURL:      baseURL,
		Username:     username,
		Password:     creds.Password,
		CalendarPath: path,
		Clock:        clock,
	}, logger)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
