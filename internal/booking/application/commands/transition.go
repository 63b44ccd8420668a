package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// statusChanger applies one status transition and records its events.
type statusChanger struct {
	bookings domain.Repository
	outbox   outbox.Repository
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
}

func (s statusChanger) apply(ctx context.Context, id uuid.UUID, change func(b *domain.Booking) error) (*domain.Booking, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: booking id is required", sharedDomain.ErrInvalidInput)
	}
	var booking *domain.Booking
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		b, err := s.bookings.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := change(b); err != nil {
			return err
		}
		if err := s.bookings.Update(txCtx, b); err != nil {
			return err
		}
		events := b.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, b.HostID()))
		if err := outbox.SaveEvents(txCtx, s.outbox, events); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	booking.ClearDomainEvents()
	return booking, nil
}
