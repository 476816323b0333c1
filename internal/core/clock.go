package core

import "time"

// Clock abstracts time for the breaker, cache, and backoff so tests can
// drive transitions deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the production clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually-advanced clock for tests. Sleep advances the
// clock instead of blocking.
type FakeClock struct {
	now time.Time
}

// NewFakeClock starts a fake clock at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time        { return c.now }
func (c *FakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
