package domain

import "time"

// Clock supplies the current instant. A nil Clock reads the system clock.
type Clock func() time.Time

// Now returns the current instant in UTC.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
