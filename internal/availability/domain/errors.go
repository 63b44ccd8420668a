package domain

import (
	"errors"
	"fmt"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var (
	ErrInvalidClockTime  = fmt.Errorf("%w: invalid clock time", sharedDomain.ErrInvalidInput)
	ErrInvalidDate       = fmt.Errorf("%w: invalid date", sharedDomain.ErrInvalidInput)
	ErrInvalidRange      = fmt.Errorf("%w: invalid time range", sharedDomain.ErrInvalidInput)
	ErrUnknownTimeZone   = fmt.Errorf("%w: unknown time zone", sharedDomain.ErrInvalidInput)
	ErrInvalidRule       = fmt.Errorf("%w: invalid availability rule", sharedDomain.ErrInvalidInput)
	ErrOverlappingRules  = fmt.Errorf("%w: availability rules overlap", sharedDomain.ErrInvalidInput)
	ErrInvalidEventType  = fmt.Errorf("%w: invalid event type", sharedDomain.ErrInvalidInput)
	ErrEmptyHostID       = fmt.Errorf("%w: host id is required", sharedDomain.ErrInvalidInput)
	ErrScheduleNotFound  = fmt.Errorf("schedule %w", sharedDomain.ErrNotFound)
	ErrEventTypeNotFound = fmt.Errorf("event type %w", sharedDomain.ErrNotFound)
)

// IsNotFound reports whether err is a lookup miss in this context.
func IsNotFound(err error) bool {
	return errors.Is(err, sharedDomain.ErrNotFound)
}
