package clock

import "time"

// Clock abstracts "now" so every time-based rule (future-date checks,
// scheduling-conflict windows, lead-time bounds) can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns the wall clock, normalized to UTC.
func System() Clock {
	return systemClock{}
}

// Fixed is a clock pinned to a single instant. Tests advance it explicitly.
type Fixed struct {
	Instant time.Time
}

func NewFixed(at time.Time) *Fixed {
	return &Fixed{Instant: at.UTC()}
}

func (f *Fixed) Now() time.Time {
	return f.Instant
}

// Advance moves the pinned instant forward (or backward with a negative d).
func (f *Fixed) Advance(d time.Duration) {
	f.Instant = f.Instant.Add(d)
}
