package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// Calendars resolves a host's connected calendars into busy-time sources
// and event writers.
type Calendars struct {
	repo     domain.ConnectedCalendarRepository
	registry *ProviderRegistry
	sealer   *CredentialSealer
	breakers *BreakerSet
	logger   *slog.Logger
}

// NewCalendars creates the resolver. breakers may be nil to disable
// circuit breaking.
func NewCalendars(
	repo domain.ConnectedCalendarRepository,
	registry *ProviderRegistry,
	sealer *CredentialSealer,
	breakers *BreakerSet,
	logger *slog.Logger,
) *Calendars {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendars{
		repo:     repo,
		registry: registry,
		sealer:   sealer,
		breakers: breakers,
		logger:   logger,
	}
}

var _ availability.SourceProvider = (*Calendars)(nil)

// SourcesFor returns one source per enabled busy-source calendar of the
// host. A calendar whose adapter cannot be built still yields a source that
// fails, so availability is degraded instead of silently free.
func (c *Calendars) SourcesFor(ctx context.Context, hostID uuid.UUID) ([]availability.BusyTimeSource, error) {
	hosted, err := c.busySources(ctx, hostID)
	if err != nil {
		return nil, err
	}
	sources := make([]availability.BusyTimeSource, len(hosted))
	for i, h := range hosted {
		sources[i] = h.source
	}
	return sources, nil
}

// hostSource is a busy-time source and whether bookings are also pushed
// into the same calendar.
type hostSource struct {
	source     availability.BusyTimeSource
	pushTarget bool
}

func (c *Calendars) busySources(ctx context.Context, hostID uuid.UUID) ([]hostSource, error) {
	calendars, err := c.repo.FindByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("find connected calendars: %w", err)
	}

	var sources []hostSource
	for _, cal := range calendars {
		if !cal.ConsultForBusyTime() {
			continue
		}
		src, err := c.buildSource(ctx, cal)
		if err != nil {
			c.logger.WarnContext(ctx, "busy-time source unavailable",
				"calendar_id", cal.ID(),
				"source", cal.SourceName(),
				"error", err,
			)
			src = unavailableSource{name: cal.SourceName(), err: err}
		} else if c.breakers != nil {
			src = c.breakers.Wrap(cal.ID().String(), src)
		}
		sources = append(sources, hostSource{source: src, pushTarget: cal.ReceivesBookings()})
	}
	return sources, nil
}

func (c *Calendars) buildSource(ctx context.Context, cal *domain.ConnectedCalendar) (availability.BusyTimeSource, error) {
	creds, err := c.sealer.Open(cal.Credentials())
	if err != nil {
		return nil, err
	}
	return c.registry.CreateSource(ctx, cal, creds)
}

// WritersFor returns writers for the host's enabled push-target calendars.
// Calendars whose writer cannot be built are reported in the joined error
// while the rest are still returned.
func (c *Calendars) WritersFor(ctx context.Context, hostID uuid.UUID) ([]EventWriter, error) {
	calendars, err := c.repo.FindByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("find connected calendars: %w", err)
	}

	var (
		writers []EventWriter
		errs    []error
	)
	for _, cal := range calendars {
		if !cal.ReceivesBookings() {
			continue
		}
		creds, err := c.sealer.Open(cal.Credentials())
		if err == nil {
			var w EventWriter
			if w, err = c.registry.CreateWriter(ctx, cal, creds); err == nil {
				writers = append(writers, w)
				continue
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", cal.SourceName(), err))
	}
	return writers, errors.Join(errs...)
}

type unavailableSource struct {
	name string
	err  error
}

func (s unavailableSource) Name() string { return s.name }

func (s unavailableSource) BusyBetween(context.Context, time.Time, time.Time) ([]availability.BusyInterval, error) {
	return nil, fmt.Errorf("%w: %w", sharedDomain.ErrSourceUnavailable, s.err)
}
