package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

type slotsComputeInput struct {
	EventTypeID string `json:"event_type_id" jsonschema:"required"`
	From        string `json:"from" jsonschema:"required"`
	To          string `json:"to" jsonschema:"required"`
	TimeZone    string `json:"time_zone,omitempty"`
}

type slotsComputeOutput struct {
	EventTypeID string                       `json:"event_type_id"`
	TimeZone    string                       `json:"time_zone"`
	Slots       []availability.CandidateSlot `json:"slots"`
	Warnings    []warningOutput              `json:"warnings,omitempty"`
}

type warningOutput struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

func registerSlotTools(srv *mcp.Server, deps ToolDependencies) {
	srv.Tool("slots.compute").
		Description("List bookable slots of an event type between two dates (YYYY-MM-DD or RFC 3339)").
		Handler(func(ctx context.Context, input slotsComputeInput) (*slotsComputeOutput, error) {
			ctx = toolContext(ctx, "slots.compute")
			return computeSlots(ctx, deps.ComputeSlots, input)
		})
}

func computeSlots(ctx context.Context, computer SlotsComputer, input slotsComputeInput) (*slotsComputeOutput, error) {
	if computer == nil {
		return nil, errors.New("slot computation is not configured")
	}
	eventTypeID, err := parseUUID(input.EventTypeID)
	if err != nil {
		return nil, err
	}
	from, to, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, err
	}

	result, err := computer.Handle(ctx, availabilityQueries.ComputeSlotsQuery{
		EventTypeID: eventTypeID,
		From:        from,
		To:          to,
		TimeZone:    input.TimeZone,
	})
	if err != nil {
		return nil, err
	}

	out := &slotsComputeOutput{
		EventTypeID: result.EventTypeID.String(),
		TimeZone:    result.TimeZone,
		Slots:       result.Slots,
	}
	if out.Slots == nil {
		out.Slots = []availability.CandidateSlot{}
	}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, warningOutput{Source: w.Source, Error: w.Err.Error()})
	}
	return out, nil
}
