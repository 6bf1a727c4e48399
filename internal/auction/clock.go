package auction

import "time"

// Clock supplies the current time to transitions. Production code uses
// SystemClock; tests inject a fixed clock so period IDs, deadlines, and
// tie-breaks are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
