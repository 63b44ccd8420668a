package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// DisconnectCalendarCommand removes one of a host's calendars.
type DisconnectCalendarCommand struct {
	HostID     uuid.UUID
	CalendarID uuid.UUID
}

// DisconnectCalendarService handles the use case of disconnecting calendars.
type DisconnectCalendarService struct {
	calendarRepo domain.ConnectedCalendarRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedDomain.Clock
	logger       *slog.Logger
}

// NewDisconnectCalendarService creates a new DisconnectCalendarService.
func NewDisconnectCalendarService(
	repo domain.ConnectedCalendarRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *DisconnectCalendarService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisconnectCalendarService{
		calendarRepo: repo,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
		logger:       logger,
	}
}

// Disconnect deletes the calendar. Calendars of other hosts are reported as
// not found.
func (s *DisconnectCalendarService) Disconnect(ctx context.Context, cmd DisconnectCalendarCommand) error {
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		cal, err := s.calendarRepo.FindByID(txCtx, cmd.CalendarID)
		if err != nil {
			return err
		}
		if cal.HostID() != cmd.HostID {
			return domain.ErrCalendarNotFound
		}

		cal.MarkDisconnected(s.clock.Now())
		if err := s.calendarRepo.Delete(txCtx, cal.ID()); err != nil {
			return fmt.Errorf("delete connected calendar: %w", err)
		}
		events := cal.PullDomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(txCtx, cmd.HostID))
		return outbox.SaveEvents(txCtx, s.outboxRepo, events)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "calendar disconnected",
		"calendar_id", cmd.CalendarID,
		"host_id", cmd.HostID,
	)
	return nil
}
