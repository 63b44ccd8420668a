package domain

import "errors"

// Engine-wide error taxonomy. Bounded contexts wrap these with their own
// sentinels so callers can branch with errors.Is at any layer.
var (
	// ErrInvalidInput marks malformed requests rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSourceUnavailable marks a busy-time source that failed or timed out.
	ErrSourceUnavailable = errors.New("busy-time source unavailable")
	// ErrSlotUnavailable marks a reservation that lost the race for its slot.
	ErrSlotUnavailable = errors.New("slot no longer available")
	// ErrResourceExhausted marks a reservation whose retry budget ran out.
	ErrResourceExhausted = errors.New("reservation retry budget exhausted")
	// ErrPartialRecurrence marks a recurring booking where some occurrences failed.
	ErrPartialRecurrence = errors.New("partial recurrence failure")
	// ErrNotFound marks a lookup for an id that does not exist.
	ErrNotFound = errors.New("not found")
)
