package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

const dateLayout = "2006-01-02"

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// parseBound accepts an RFC 3339 instant or a UTC date.
func parseBound(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}

func parseRange(fromValue, toValue string) (time.Time, time.Time, error) {
	from, err := parseBound(fromValue)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseBound(toValue)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

// toolContext gives each tool call its own request id and tags its log
// records with the tool name.
func toolContext(ctx context.Context, tool string) context.Context {
	ctx = observability.NewRequestContext(ctx, observability.CorrelationIDFromContext(ctx))
	return observability.WithAttrs(ctx, "tool", tool)
}
