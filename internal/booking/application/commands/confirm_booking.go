package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// ConfirmBookingCommand accepts a booking that waits for host confirmation.
type ConfirmBookingCommand struct {
	BookingID uuid.UUID
}

// ConfirmBookingHandler handles the ConfirmBookingCommand.
type ConfirmBookingHandler struct {
	changer statusChanger
}

// NewConfirmBookingHandler creates a new ConfirmBookingHandler.
func NewConfirmBookingHandler(
	bookings domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
) *ConfirmBookingHandler {
	return &ConfirmBookingHandler{
		changer: statusChanger{bookings: bookings, outbox: outboxRepo, uow: uow, clock: clock},
	}
}

func (h *ConfirmBookingHandler) Handle(ctx context.Context, cmd ConfirmBookingCommand) (*domain.Booking, error) {
	return h.changer.apply(ctx, cmd.BookingID, func(b *domain.Booking) error {
		return b.Accept(h.changer.clock.Now())
	})
}

// DeclineBookingCommand rejects a booking that waits for host confirmation.
type DeclineBookingCommand struct {
	BookingID uuid.UUID
	Reason    string
}

// DeclineBookingHandler handles the DeclineBookingCommand.
type DeclineBookingHandler struct {
	changer statusChanger
}

// NewDeclineBookingHandler creates a new DeclineBookingHandler.
func NewDeclineBookingHandler(
	bookings domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
) *DeclineBookingHandler {
	return &DeclineBookingHandler{
		changer: statusChanger{bookings: bookings, outbox: outboxRepo, uow: uow, clock: clock},
	}
}

func (h *DeclineBookingHandler) Handle(ctx context.Context, cmd DeclineBookingCommand) (*domain.Booking, error) {
	return h.changer.apply(ctx, cmd.BookingID, func(b *domain.Booking) error {
		return b.Reject(cmd.Reason, h.changer.clock.Now())
	})
}
