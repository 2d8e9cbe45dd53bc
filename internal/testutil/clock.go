// Package testutil provides deterministic time sources for tests.
package testutil

import (
	"sync"
	"time"
)

// SteppingClock hands out strictly increasing wall-clock timestamps.
//
// Each call to Now returns the current time and advances it by step,
// so rows written through a store configured with this clock get
// distinct, ordered created_at values without sleeping.
//
// Thread-safety: Now is safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewSteppingClock creates a clock starting at start, advancing by step
// per call.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{now: start, step: step}
}

// Now returns the current time and advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// FixedClock returns a clock function frozen at t. Use it where a test
// needs stable timestamps rather than ordered ones.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
