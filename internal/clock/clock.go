// Package clock provides an injectable time source so that wait-until and backoff
// comparisons can be tested with simulated time instead of the system clock.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by time.Now.
type Real struct{}

// NewReal creates a Clock backed by the system clock.
func NewReal() Real {
	return Real{}
}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a Clock with a settable current time, for tests.
type Fake struct {
	current time.Time
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{current: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	return f.current
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}

// Set moves the fake clock to an absolute time.
func (f *Fake) Set(t time.Time) {
	f.current = t
}
