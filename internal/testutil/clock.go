// Package testutil provides deterministic clock and ID sources for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic time source for tests. Every call
// to Now advances the clock by a fixed step, so repeated runs of the same
// scenario observe identical timestamps.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at base. Each Now() call returns the
// current time and then advances by step (pass 0 for a frozen clock).
func NewClock(base time.Time, step time.Duration) *Clock {
	return &Clock{now: base, step: step}
}

// Now returns the current time and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Set moves the clock to a specific time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
