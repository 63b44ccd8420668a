package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// RangeInput is a wall-clock range such as 09:00-17:00.
type RangeInput struct {
	Start string
	End   string
}

// RuleInput makes a range available every week on Weekday.
type RuleInput struct {
	Weekday string
	RangeInput
}

// OverrideInput replaces the rules on one date. No ranges blocks the date.
type OverrideInput struct {
	Date   string
	Ranges []RangeInput
}

// UpsertScheduleCommand creates or replaces a host's schedule. Without a
// ScheduleID the schedule is matched by host and name.
type UpsertScheduleCommand struct {
	ScheduleID uuid.UUID
	HostID     uuid.UUID
	Name       string
	TimeZone   string
	Rules      []RuleInput
	Overrides  []OverrideInput
}

// UpsertScheduleResult contains the result of the upsert.
type UpsertScheduleResult struct {
	ScheduleID uuid.UUID
	Created    bool
}

// UpsertScheduleHandler handles the UpsertScheduleCommand.
type UpsertScheduleHandler struct {
	schedules domain.ScheduleRepository
	uow       sharedApplication.UnitOfWork
	clock     sharedDomain.Clock
}

// NewUpsertScheduleHandler creates a new UpsertScheduleHandler.
func NewUpsertScheduleHandler(schedules domain.ScheduleRepository, uow sharedApplication.UnitOfWork, clock sharedDomain.Clock) *UpsertScheduleHandler {
	return &UpsertScheduleHandler{schedules: schedules, uow: uow, clock: clock}
}

// Handle executes the UpsertScheduleCommand.
func (h *UpsertScheduleHandler) Handle(ctx context.Context, cmd UpsertScheduleCommand) (*UpsertScheduleResult, error) {
	rules, err := parseRules(cmd.Rules)
	if err != nil {
		return nil, err
	}
	overrides, err := parseOverrides(cmd.Overrides)
	if err != nil {
		return nil, err
	}

	var result *UpsertScheduleResult
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		now := h.clock.Now()
		schedule, err := h.find(txCtx, cmd)
		if err != nil {
			return err
		}
		created := schedule == nil
		if created {
			if schedule, err = domain.NewSchedule(cmd.HostID, cmd.Name, cmd.TimeZone, now); err != nil {
				return err
			}
		} else {
			if schedule.HostID() != cmd.HostID {
				return fmt.Errorf("%w: schedule belongs to another host", sharedDomain.ErrInvalidInput)
			}
			schedule.Rename(cmd.Name, now)
			if err := schedule.SetTimeZone(cmd.TimeZone, now); err != nil {
				return err
			}
			for _, o := range schedule.Overrides() {
				schedule.RemoveOverride(o.Date, now)
			}
		}

		if err := schedule.ReplaceRules(rules, now); err != nil {
			return err
		}
		for _, o := range overrides {
			if err := schedule.SetOverride(o.Date, o.Ranges, now); err != nil {
				return err
			}
		}
		if err := h.schedules.Save(txCtx, schedule); err != nil {
			return fmt.Errorf("save schedule: %w", err)
		}
		result = &UpsertScheduleResult{ScheduleID: schedule.ID(), Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *UpsertScheduleHandler) find(ctx context.Context, cmd UpsertScheduleCommand) (*domain.Schedule, error) {
	if cmd.ScheduleID != uuid.Nil {
		schedule, err := h.schedules.FindByID(ctx, cmd.ScheduleID)
		if err != nil {
			return nil, err
		}
		return schedule, nil
	}
	if cmd.HostID == uuid.Nil {
		return nil, domain.ErrEmptyHostID
	}
	existing, err := h.schedules.FindByHost(ctx, cmd.HostID)
	if err != nil {
		return nil, err
	}
	for _, s := range existing {
		if strings.EqualFold(s.Name(), strings.TrimSpace(cmd.Name)) {
			return s, nil
		}
	}
	return nil, nil
}

func parseRange(in RangeInput) (domain.LocalRange, error) {
	start, err := domain.ParseClockTime(in.Start)
	if err != nil {
		return domain.LocalRange{}, err
	}
	end, err := domain.ParseClockTime(in.End)
	if err != nil {
		return domain.LocalRange{}, err
	}
	return domain.LocalRange{Start: start, End: end}, nil
}

func parseRules(inputs []RuleInput) ([]domain.WeeklyRule, error) {
	rules := make([]domain.WeeklyRule, 0, len(inputs))
	var errs []error
	for _, in := range inputs {
		day, err := domain.ParseWeekday(in.Weekday)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r, err := parseRange(in.RangeInput)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, domain.WeeklyRule{Weekday: day, LocalRange: r})
	}
	return rules, errors.Join(errs...)
}

func parseOverrides(inputs []OverrideInput) ([]domain.DateOverride, error) {
	out := make([]domain.DateOverride, 0, len(inputs))
	for _, in := range inputs {
		d, err := domain.ParseDate(in.Date)
		if err != nil {
			return nil, err
		}
		o := domain.DateOverride{Date: d}
		for _, r := range in.Ranges {
			lr, err := parseRange(r)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", in.Date, err)
			}
			o.Ranges = append(o.Ranges, lr)
		}
		out = append(out, o)
	}
	return out, nil
}
