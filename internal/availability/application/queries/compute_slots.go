package queries

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// MaxSlotRange bounds a single slot computation.
const MaxSlotRange = 62 * domain.Day

// ComputeSlotsQuery asks for the bookable slots of an event type in
// [From, To), displayed in TimeZone.
type ComputeSlotsQuery struct {
	EventTypeID uuid.UUID
	From        time.Time
	To          time.Time
	TimeZone    string
}

// SlotsResult is the answer to a ComputeSlotsQuery. Warnings name the
// busy-time sources that could not be consulted.
type SlotsResult struct {
	EventTypeID uuid.UUID
	TimeZone    string
	Slots       []domain.CandidateSlot
	Warnings    []services.SourceWarning
}

// ComputeSlotsHandler handles the ComputeSlotsQuery.
type ComputeSlotsHandler struct {
	eventTypes domain.EventTypeRepository
	schedules  domain.ScheduleRepository
	busy       *services.BusyLoader
	clock      sharedDomain.Clock
	logger     *slog.Logger
	metrics    observability.Metrics
}

// NewComputeSlotsHandler creates a new ComputeSlotsHandler.
func NewComputeSlotsHandler(
	eventTypes domain.EventTypeRepository,
	schedules domain.ScheduleRepository,
	busy *services.BusyLoader,
	clock sharedDomain.Clock,
	logger *slog.Logger,
	metrics observability.Metrics,
) *ComputeSlotsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ComputeSlotsHandler{
		eventTypes: eventTypes,
		schedules:  schedules,
		busy:       busy,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

func (q ComputeSlotsQuery) validate() (*time.Location, error) {
	if q.EventTypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: event type id is required", sharedDomain.ErrInvalidInput)
	}
	if !q.From.Before(q.To) {
		return nil, fmt.Errorf("%w: from must be before to", domain.ErrInvalidRange)
	}
	if q.To.Sub(q.From) > MaxSlotRange {
		return nil, fmt.Errorf("%w: range exceeds %d days", domain.ErrInvalidRange, int(MaxSlotRange/domain.Day))
	}
	if q.TimeZone == "" {
		return nil, nil
	}
	return domain.LoadLocation(q.TimeZone)
}

// Handle executes the ComputeSlotsQuery. Input is validated before any
// lookup; failed calendars degrade into warnings.
func (h *ComputeSlotsHandler) Handle(ctx context.Context, query ComputeSlotsQuery) (*SlotsResult, error) {
	loc, err := query.validate()
	if err != nil {
		return nil, err
	}
	began := time.Now()
	ctx = observability.WithAttrs(ctx, "event_type_id", query.EventTypeID)

	et, err := h.eventTypes.FindByID(ctx, query.EventTypeID)
	if err != nil {
		return nil, err
	}
	schedule, err := h.schedules.FindByID(ctx, et.ScheduleID())
	if err != nil {
		return nil, fmt.Errorf("schedule for event type %s: %w", et.ID(), err)
	}
	if loc == nil {
		loc = schedule.Location()
	}

	busy, err := h.busy.Load(ctx, et, query.From, query.To)
	if err != nil {
		return nil, err
	}

	slots := slices.Collect(services.GenerateSlots(services.SlotRequest{
		Schedule:  schedule,
		EventType: et,
		Busy:      domain.Intervals(busy.Busy),
		From:      query.From,
		To:        query.To,
		Location:  loc,
		Now:       h.clock.Now(),
	}))

	h.metrics.Counter(observability.MetricSlotsComputed, int64(len(slots)))
	h.metrics.Timing(observability.MetricSlotsComputeDuration, time.Since(began))
	h.logger.DebugContext(ctx, "slots computed",
		"event_type_id", et.ID(),
		"slots", len(slots),
		"degraded", busy.Degraded(),
	)

	return &SlotsResult{
		EventTypeID: et.ID(),
		TimeZone:    loc.String(),
		Slots:       slots,
		Warnings:    busy.Warnings,
	}, nil
}
