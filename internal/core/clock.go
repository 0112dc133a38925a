package core

import "time"

// Clock abstracts wall-clock time so scheduling logic can be tested with
// arbitrary dates.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant. Intended for tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T
}

// DateOf truncates an instant to its calendar day in UTC, formatted
// YYYY-MM-DD. Used as the idempotency key for per-day operations.
func DateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
