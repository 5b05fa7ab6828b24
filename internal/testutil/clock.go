// Package testutil provides shared helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a controllable wall clock for tests. Timestamp-dependent
// behavior (meta stamps, backup generation names, pruning order) takes
// a now-function at construction, so tests inject Clock.Now and never
// sleep to move time.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}
