// Package clock provides the time source abstraction used by the driver
// conductor so liveness behavior can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is a minimal time source. Production code uses SystemClock;
// tests use SimulatedClock and advance it by hand.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SimulatedClock is a deterministic, manual-advance clock. It starts at
// startTime and only moves when Advance is called.
type SimulatedClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewSimulatedClock creates a new simulated clock starting at the given time.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{current: startTime}
}

// Now implements Clock.
func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d. Non-positive durations are ignored.
func (c *SimulatedClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}
