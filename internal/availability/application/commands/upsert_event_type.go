package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// UpsertEventTypeCommand creates or updates the event type identified by
// host and slug.
type UpsertEventTypeCommand struct {
	HostID               uuid.UUID
	ScheduleID           uuid.UUID
	Slug                 string
	Title                string
	Duration             time.Duration
	BufferBefore         time.Duration
	BufferAfter          time.Duration
	MinimumNotice        time.Duration
	Granularity          time.Duration
	MinDaysAhead         int
	MaxDaysAhead         int
	Recurrence           domain.RecurrencePolicy
	RequiresConfirmation bool
}

func (c UpsertEventTypeCommand) params() domain.EventTypeParams {
	return domain.EventTypeParams{
		HostID:               c.HostID,
		ScheduleID:           c.ScheduleID,
		Slug:                 c.Slug,
		Title:                c.Title,
		Duration:             c.Duration,
		BufferBefore:         c.BufferBefore,
		BufferAfter:          c.BufferAfter,
		MinimumNotice:        c.MinimumNotice,
		Granularity:          c.Granularity,
		Window:               domain.BookingWindow{MinDaysAhead: c.MinDaysAhead, MaxDaysAhead: c.MaxDaysAhead},
		Recurrence:           c.Recurrence,
		RequiresConfirmation: c.RequiresConfirmation,
	}
}

// UpsertEventTypeResult contains the result of the upsert.
type UpsertEventTypeResult struct {
	EventTypeID uuid.UUID
	Created     bool
}

// UpsertEventTypeHandler handles the UpsertEventTypeCommand.
type UpsertEventTypeHandler struct {
	eventTypes domain.EventTypeRepository
	schedules  domain.ScheduleRepository
	uow        sharedApplication.UnitOfWork
	clock      sharedDomain.Clock
}

// NewUpsertEventTypeHandler creates a new UpsertEventTypeHandler.
func NewUpsertEventTypeHandler(
	eventTypes domain.EventTypeRepository,
	schedules domain.ScheduleRepository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
) *UpsertEventTypeHandler {
	return &UpsertEventTypeHandler{eventTypes: eventTypes, schedules: schedules, uow: uow, clock: clock}
}

// Handle executes the UpsertEventTypeCommand.
func (h *UpsertEventTypeHandler) Handle(ctx context.Context, cmd UpsertEventTypeCommand) (*UpsertEventTypeResult, error) {
	var result *UpsertEventTypeResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		schedule, err := h.schedules.FindByID(txCtx, cmd.ScheduleID)
		if err != nil {
			return err
		}
		if schedule.HostID() != cmd.HostID {
			return fmt.Errorf("%w: schedule belongs to another host", sharedDomain.ErrInvalidInput)
		}

		now := h.clock.Now()
		et, err := h.eventTypes.FindBySlug(txCtx, cmd.HostID, cmd.Slug)
		created := domain.IsNotFound(err)
		switch {
		case created:
			if et, err = domain.NewEventType(cmd.params(), now); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := et.Update(cmd.params(), now); err != nil {
				return err
			}
		}

		if err := h.eventTypes.Save(txCtx, et); err != nil {
			return fmt.Errorf("save event type: %w", err)
		}
		result = &UpsertEventTypeResult{EventTypeID: et.ID(), Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
