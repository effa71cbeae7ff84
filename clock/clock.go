// Package clock provides the runtime.ClockProvider implementations behind
// the $now operator: a system clock for production and a fixed clock for
// deterministic tests, grounded on original_source's TimeProvider /
// FixedTimeProvider (_examples/original_source/src/executor/traits.rs).
package clock

import "time"

// System is a runtime.ClockProvider backed by the wall clock.
type System struct{}

func (System) Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (System) UnixTimestamp() int64 {
	return time.Now().Unix()
}

// Fixed is a deterministic runtime.ClockProvider for tests, substitutable
// for System per spec.md §4.4.
type Fixed struct {
	Timestamp string
	Seconds   int64
}

// NewFixed builds a Fixed clock from a time.Time, deriving both the
// ISO-8601 string and Unix-seconds forms from the same instant.
func NewFixed(t time.Time) Fixed {
	return Fixed{Timestamp: t.UTC().Format(time.RFC3339), Seconds: t.Unix()}
}

func (f Fixed) Now() string {
	return f.Timestamp
}

func (f Fixed) UnixTimestamp() int64 {
	return f.Seconds
}
