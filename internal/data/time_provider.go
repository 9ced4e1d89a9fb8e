package data

import "time"

// TimeProvider supplies timestamps written by the repositories.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider returns the system time in UTC.
type RealTimeProvider struct{}

// Now returns the current time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider returns a settable time, for tests and seeding.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a new FixedTimeProvider with the given time.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.fixedTime
}

// AddTime advances the fixed time by d.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.fixedTime = f.fixedTime.Add(d)
}
