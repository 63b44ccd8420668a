package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// SlotChecker re-checks a requested slot against availability and busy time.
type SlotChecker interface {
	Verify(
		ctx context.Context,
		et *availability.EventType,
		slot availability.CandidateSlot,
		now time.Time,
		checkWindow bool,
	) ([]availabilityServices.SourceWarning, error)
}

// CreateBookingCommand books the slot of an event type starting at
// SlotStart. A non-nil Recurrence books the following occurrences too.
type CreateBookingCommand struct {
	EventTypeID uuid.UUID
	SlotStart   time.Time
	Attendee    domain.Attendee
	Recurrence  *services.RecurrenceSpec
}

// CreateBookingResult holds the committed booking. For recurring requests
// Booking is the first committed occurrence and Recurrence lists them all.
type CreateBookingResult struct {
	Booking    *domain.Booking
	Recurrence *RecurrenceResult
	Warnings   []availabilityServices.SourceWarning
}

// RecurrenceResult reports every occurrence of a recurring request.
// GroupID is uuid.Nil when nothing was booked.
type RecurrenceResult struct {
	GroupID  uuid.UUID
	Booked   []*domain.Booking
	Failures []OccurrenceFailure
}

// OccurrenceFailure is one occurrence that could not be booked.
type OccurrenceFailure struct {
	Index int
	Slot  availability.CandidateSlot
	Err   error
}

// PartialRecurrenceFailure is returned with the result when at least one
// occurrence failed. Booked occurrences stay committed.
type PartialRecurrenceFailure struct {
	Result *RecurrenceResult
}

func (e *PartialRecurrenceFailure) Error() string {
	total := len(e.Result.Booked) + len(e.Result.Failures)
	return fmt.Sprintf("recurring booking partially failed: %d of %d occurrences booked", len(e.Result.Booked), total)
}

func (e *PartialRecurrenceFailure) Is(target error) bool {
	return target == sharedDomain.ErrPartialRecurrence
}

// CreateBookingHandler handles the CreateBookingCommand.
type CreateBookingHandler struct {
	eventTypes availability.EventTypeRepository
	checker    SlotChecker
	reserver   *services.Reserver
	expander   *services.RecurrenceExpander
	clock      sharedDomain.Clock
	logger     *slog.Logger
}

// NewCreateBookingHandler creates a new CreateBookingHandler.
func NewCreateBookingHandler(
	eventTypes availability.EventTypeRepository,
	checker SlotChecker,
	reserver *services.Reserver,
	expander *services.RecurrenceExpander,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *CreateBookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateBookingHandler{
		eventTypes: eventTypes,
		checker:    checker,
		reserver:   reserver,
		expander:   expander,
		clock:      clock,
		logger:     logger,
	}
}

func (c *CreateBookingCommand) validate() error {
	var errs []error
	if c.EventTypeID == uuid.Nil {
		errs = append(errs, fmt.Errorf("%w: event type id is required", sharedDomain.ErrInvalidInput))
	}
	if c.SlotStart.IsZero() {
		errs = append(errs, fmt.Errorf("%w: slot start is required", sharedDomain.ErrInvalidInput))
	}
	if err := c.Attendee.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Handle executes the CreateBookingCommand. A lost race returns a
// *domain.RejectedError; the caller should fetch fresh slots.
func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*CreateBookingResult, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	ctx = observability.WithAttrs(ctx, "event_type_id", cmd.EventTypeID)
	et, err := h.eventTypes.FindByID(ctx, cmd.EventTypeID)
	if err != nil {
		return nil, err
	}
	seed := et.SlotAt(cmd.SlotStart)

	if cmd.Recurrence != nil && et.Recurrence().Recurring() {
		return h.handleRecurring(ctx, et, seed, cmd)
	}

	warnings, err := h.checker.Verify(ctx, et, seed, h.clock.Now(), true)
	if err != nil {
		return nil, h.rejectUnavailable(et, seed, cmd.Attendee, err)
	}
	b, err := h.reserver.Reserve(ctx, services.ReserveRequest{EventType: et, Slot: seed, Attendee: cmd.Attendee})
	if err != nil {
		return nil, err
	}
	return &CreateBookingResult{Booking: b, Warnings: warnings}, nil
}

func (h *CreateBookingHandler) handleRecurring(
	ctx context.Context,
	et *availability.EventType,
	seed availability.CandidateSlot,
	cmd CreateBookingCommand,
) (*CreateBookingResult, error) {
	occurrences, err := h.expander.Expand(et, seed, *cmd.Recurrence)
	if err != nil {
		return nil, err
	}

	// The seed's window violations fail the whole request.
	warnings, seedErr := h.checker.Verify(ctx, et, seed, h.clock.Now(), true)
	if errors.Is(seedErr, sharedDomain.ErrInvalidInput) {
		return nil, seedErr
	}

	groupID := uuid.New()
	result := &RecurrenceResult{GroupID: groupID}
	fail := func(i int, slot availability.CandidateSlot, err error) {
		result.Failures = append(result.Failures, OccurrenceFailure{Index: i, Slot: slot, Err: err})
	}

	for i, slot := range occurrences {
		if err := ctx.Err(); err != nil {
			fail(i, slot, err)
			continue
		}

		checkErr := seedErr
		if i > 0 {
			var w []availabilityServices.SourceWarning
			w, checkErr = h.checker.Verify(ctx, et, slot, h.clock.Now(), false)
			warnings = append(warnings, w...)
		}
		if checkErr != nil {
			fail(i, slot, h.rejectUnavailable(et, slot, cmd.Attendee, checkErr))
			continue
		}

		b, err := h.reserver.Reserve(ctx, services.ReserveRequest{
			EventType: et,
			Slot:      slot,
			Attendee:  cmd.Attendee,
			GroupID:   groupID,
			Index:     i,
		})
		if err != nil {
			fail(i, slot, err)
			continue
		}
		result.Booked = append(result.Booked, b)
	}

	out := &CreateBookingResult{Recurrence: result, Warnings: warnings}
	if len(result.Booked) > 0 {
		out.Booking = result.Booked[0]
	} else {
		result.GroupID = uuid.Nil
	}
	if len(result.Failures) == 0 {
		return out, nil
	}
	h.logger.Info("recurring booking partially failed",
		"event_type_id", et.ID(),
		"group_id", result.GroupID,
		"booked", len(result.Booked),
		"failed", len(result.Failures),
	)
	return out, &PartialRecurrenceFailure{Result: result}
}

// rejectUnavailable turns a failed slot check into a rejection. Errors that
// are not about availability pass through unchanged.
func (h *CreateBookingHandler) rejectUnavailable(et *availability.EventType, slot availability.CandidateSlot, attendee domain.Attendee, err error) error {
	if !errors.Is(err, sharedDomain.ErrSlotUnavailable) {
		return err
	}
	now := h.clock.Now()
	b, buildErr := domain.NewBooking(et, slot, attendee, now)
	if buildErr == nil {
		_ = b.Reject(domain.ReasonSlotTaken, now)
	}
	return domain.NewRejectedError(domain.RejectionSlotUnavailable, domain.ReasonSlotTaken, b, err)
}
