package domain

import (
	"errors"
	"fmt"

	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

var (
	ErrInvalidAttendee   = fmt.Errorf("%w: invalid attendee", sharedDomain.ErrInvalidInput)
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrBookingNotFound   = fmt.Errorf("booking %w", sharedDomain.ErrNotFound)

	// ErrSlotTaken is returned by the store when a live booking already
	// overlaps the footprint.
	ErrSlotTaken = errors.New("footprint overlaps a live booking")
	// ErrWriteConflict is a transient store conflict that may be retried.
	ErrWriteConflict = errors.New("booking store write conflict")
)

// Reasons reported to callers when a reservation is rejected.
const (
	ReasonSlotTaken = "slot no longer available"
	ReasonTimedOut  = "reservation timed out"
	ReasonExhausted = "reservation retries exhausted"
)

// RejectionKind classifies a rejected reservation.
type RejectionKind string

const (
	RejectionSlotUnavailable   RejectionKind = "slot_unavailable"
	RejectionResourceExhausted RejectionKind = "resource_exhausted"
)

// RejectedError reports a reservation that did not commit. Booking is the
// rejected aggregate; it was never persisted.
type RejectedError struct {
	Kind    RejectionKind
	Reason  string
	Booking *Booking
	Err     error
}

// NewRejectedError wraps cause for the rejected booking b.
func NewRejectedError(kind RejectionKind, reason string, b *Booking, cause error) *RejectedError {
	return &RejectedError{Kind: kind, Reason: reason, Booking: b, Err: cause}
}

func (e *RejectedError) Error() string {
	return "booking rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Is matches ErrSlotUnavailable for every rejection and ErrResourceExhausted
// for exhausted retries.
func (e *RejectedError) Is(target error) bool {
	switch target {
	case sharedDomain.ErrSlotUnavailable:
		return true
	case sharedDomain.ErrResourceExhausted:
		return e.Kind == RejectionResourceExhausted
	default:
		return false
	}
}

// AsRejected extracts a RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var rejected *RejectedError
	ok := errors.As(err, &rejected)
	return rejected, ok
}
