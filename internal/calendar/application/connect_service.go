package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// ConnectCalendarCommand links a calendar to a host, or updates the
// existing link for the same provider calendar.
type ConnectCalendarCommand struct {
	HostID      uuid.UUID
	Provider    domain.ProviderType
	CalendarID  string
	Name        string
	BusySource  bool
	PushTarget  bool
	Config      map[string]string
	Credentials Credentials
}

// ConnectCalendarResult is the result of connecting a calendar.
type ConnectCalendarResult struct {
	Calendar *domain.ConnectedCalendar
	IsUpdate bool
}

// ConnectCalendarService handles the use case of connecting a calendar.
type ConnectCalendarService struct {
	calendarRepo domain.ConnectedCalendarRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	sealer       *CredentialSealer
	clock        sharedDomain.Clock
	logger       *slog.Logger
}

// NewConnectCalendarService creates a new ConnectCalendarService.
func NewConnectCalendarService(
	repo domain.ConnectedCalendarRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	sealer *CredentialSealer,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *ConnectCalendarService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectCalendarService{
		calendarRepo: repo,
		outboxRepo:   outboxRepo,
		uow:          uow,
		sealer:       sealer,
		clock:        clock,
		logger:       logger,
	}
}

// Connect connects a new calendar or updates an existing one.
func (s *ConnectCalendarService) Connect(ctx context.Context, cmd ConnectCalendarCommand) (*ConnectCalendarResult, error) {
	now := s.clock.Now()
	sealed, err := s.sealer.Seal(cmd.Credentials)
	if err != nil {
		return nil, err
	}

	var result ConnectCalendarResult
	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		cal, err := s.calendarRepo.FindByHostProviderAndCalendar(txCtx, cmd.HostID, cmd.Provider, cmd.CalendarID)
		switch {
		case err == nil:
			result.IsUpdate = true
			if err := cal.Rename(cmd.Name, now); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrCalendarNotFound):
			cal, err = domain.NewConnectedCalendar(cmd.HostID, cmd.Provider, cmd.CalendarID, cmd.Name, now)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("find connected calendar: %w", err)
		}

		cal.SetBusySource(cmd.BusySource, now)
		cal.SetPushTarget(cmd.PushTarget, now)
		cal.SetEnabled(true, now)
		for k, v := range cmd.Config {
			cal.SetConfig(k, v, now)
		}
		if sealed != nil {
			cal.SetCredentials(sealed, now)
		}

		if err := s.calendarRepo.Save(txCtx, cal); err != nil {
			return fmt.Errorf("save connected calendar: %w", err)
		}
		events := cal.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(txCtx, cmd.HostID))
		if err := outbox.SaveEvents(txCtx, s.outboxRepo, events); err != nil {
			return err
		}
		result.Calendar = cal
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Calendar.ClearDomainEvents()

	s.logger.InfoContext(ctx, "calendar connected",
		"calendar_id", result.Calendar.ID(),
		"host_id", cmd.HostID,
		"source", result.Calendar.SourceName(),
		"update", result.IsUpdate,
	)
	return &result, nil
}
