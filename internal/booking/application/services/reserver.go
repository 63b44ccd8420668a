package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// ReserverConfig bounds a single reservation.
type ReserverConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration
}

// DefaultReserverConfig returns the defaults used when nothing is configured.
func DefaultReserverConfig() ReserverConfig {
	return ReserverConfig{
		MaxAttempts: 4,
		BackoffBase: 25 * time.Millisecond,
		BackoffMax:  400 * time.Millisecond,
		Timeout:     5 * time.Second,
	}
}

// ReserveRequest asks for one slot. GroupID and Index place the booking in
// a recurrence group; leave GroupID zero for a single booking.
type ReserveRequest struct {
	EventType *availability.EventType
	Slot      availability.CandidateSlot
	Attendee  domain.Attendee
	GroupID   uuid.UUID
	Index     int
}

func (r ReserveRequest) build(now time.Time) (*domain.Booking, error) {
	if r.EventType == nil {
		return nil, fmt.Errorf("%w: event type is required", sharedDomain.ErrInvalidInput)
	}
	if r.GroupID == uuid.Nil {
		return domain.NewBooking(r.EventType, r.Slot, r.Attendee, now)
	}
	return domain.NewOccurrence(r.EventType, r.Slot, r.Attendee, r.GroupID, r.Index, now)
}

// Reserver commits bookings. Each attempt holds the resource lock, inserts
// the booking only if its footprint is free, and writes the booking events
// to the outbox in the same transaction.
type Reserver struct {
	bookings domain.Repository
	outbox   outbox.Repository
	uow      sharedApplication.UnitOfWork
	locker   Locker
	clock    sharedDomain.Clock
	config   ReserverConfig
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewReserver creates a Reserver. A nil locker selects an in-process
// KeyedLocker.
func NewReserver(
	bookings domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker Locker,
	clock sharedDomain.Clock,
	config ReserverConfig,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Reserver {
	defaults := DefaultReserverConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if locker == nil {
		locker = NewKeyedLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Reserver{
		bookings: bookings,
		outbox:   outboxRepo,
		uow:      uow,
		locker:   locker,
		clock:    clock,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Reserve commits the requested slot or explains why it could not. Conflicts
// and timeouts return a *domain.RejectedError; nothing is persisted for them.
// Reserve never moves the booking to another slot.
func (r *Reserver) Reserve(ctx context.Context, req ReserveRequest) (*domain.Booking, error) {
	// Validate before taking any lock.
	if _, err := req.build(r.clock.Now()); err != nil {
		return nil, err
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	defer func() { r.metrics.Timing(observability.MetricReserveDuration, time.Since(started)) }()

	key := req.EventType.ResourceKey()
	log := r.logger.With("resource_key", key, "slot_start", req.Slot.Start)

	for attempt := 1; ; attempt++ {
		r.metrics.Counter(observability.MetricReserveAttempts, 1)

		b, err := r.attempt(ctx, req)
		switch {
		case err == nil:
			r.metrics.Counter(observability.MetricBookingsCommitted, 1)
			log.Info("booking committed", "booking_id", b.ID(), "status", b.Status(), "attempt", attempt)
			return b, nil

		case errors.Is(err, domain.ErrSlotTaken):
			r.metrics.Counter(observability.MetricReserveConflicts, 1)
			log.Info("reservation conflict", "attempt", attempt)
			return nil, r.reject(req, domain.RejectionSlotUnavailable, domain.ReasonSlotTaken, err)

		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, r.timedOut(req, log, attempt, err)

		case ctx.Err() != nil:
			return nil, ctx.Err()

		case errors.Is(err, domain.ErrWriteConflict):
			if attempt >= r.config.MaxAttempts {
				r.metrics.Counter(observability.MetricReserveExhausted, 1)
				log.Warn("reservation retries exhausted", "attempt", attempt, "error", err)
				return nil, r.reject(req, domain.RejectionResourceExhausted, domain.ReasonExhausted, err)
			}
			wait := outbox.Backoff(r.config.BackoffBase, r.config.BackoffMax, attempt)
			log.Debug("retrying reservation", "attempt", attempt, "backoff", wait, "error", err)
			if err := sleep(ctx, wait); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, r.timedOut(req, log, attempt, err)
				}
				return nil, err
			}

		default:
			log.Error("reservation failed", "attempt", attempt, "error", err)
			return nil, err
		}
	}
}

func (r *Reserver) attempt(ctx context.Context, req ReserveRequest) (*domain.Booking, error) {
	unlock, err := r.locker.Lock(ctx, req.EventType.ResourceKey())
	if err != nil {
		return nil, fmt.Errorf("acquire resource lock: %w", err)
	}
	defer unlock()

	now := r.clock.Now()
	b, err := req.build(now)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, r.uow, func(txCtx context.Context) error {
		if err := r.bookings.InsertIfFree(txCtx, b); err != nil {
			return err
		}
		if !req.EventType.RequiresConfirmation() {
			if err := b.Accept(now); err != nil {
				return err
			}
			if err := r.bookings.Update(txCtx, b); err != nil {
				return err
			}
		}
		events := b.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, b.HostID()))
		return outbox.SaveEvents(txCtx, r.outbox, events)
	})
	if err != nil {
		return nil, err
	}
	b.ClearDomainEvents()
	return b, nil
}

func (r *Reserver) timedOut(req ReserveRequest, log *slog.Logger, attempt int, cause error) error {
	r.metrics.Counter(observability.MetricReserveTimeouts, 1)
	log.Warn("reservation timed out", "attempt", attempt, "timeout", r.config.Timeout)
	return r.reject(req, domain.RejectionSlotUnavailable, domain.ReasonTimedOut, cause)
}

// reject builds the rejected aggregate returned to the caller.
func (r *Reserver) reject(req ReserveRequest, kind domain.RejectionKind, reason string, cause error) error {
	now := r.clock.Now()
	b, err := req.build(now)
	if err == nil {
		_ = b.Reject(reason, now)
	}
	return domain.NewRejectedError(kind, reason, b, cause)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
