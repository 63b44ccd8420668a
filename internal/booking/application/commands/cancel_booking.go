package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// CancelBookingCommand cancels a pending or accepted booking, freeing its
// footprint.
type CancelBookingCommand struct {
	BookingID uuid.UUID
	Reason    string
}

// CancelBookingHandler handles the CancelBookingCommand.
type CancelBookingHandler struct {
	changer statusChanger
	logger  *slog.Logger
}

// NewCancelBookingHandler creates a new CancelBookingHandler.
func NewCancelBookingHandler(
	bookings domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *CancelBookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelBookingHandler{
		changer: statusChanger{bookings: bookings, outbox: outboxRepo, uow: uow, clock: clock},
		logger:  logger,
	}
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*domain.Booking, error) {
	b, err := h.changer.apply(ctx, cmd.BookingID, func(b *domain.Booking) error {
		return b.Cancel(cmd.Reason, h.changer.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("booking cancelled", "booking_id", b.ID(), "resource_key", b.ResourceKey())
	return b, nil
}
