// Package internal provides internal utilities for the rtcpfb packages.
package internal

import (
	"sync"
	"time"
)

// Clock is an interface for obtaining monotonic time.
// This abstraction allows for deterministic testing of time-dependent code.
type Clock interface {
	// Now returns the current time. Implementations must return
	// monotonically increasing time values.
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now, which carries a monotonic
// reading and is safe for measuring elapsed time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock for tests whose time only moves when told to.
// It is safe for concurrent use, so background loops may read it while a
// test advances it.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualClock creates a ManualClock initialized to t.
// If t is zero, it starts at a fixed non-zero time.
func NewManualClock(t time.Time) *ManualClock {
	if t.IsZero() {
		t = time.Unix(1000000000, 0) // 2001-09-09
	}
	return &ManualClock{current: t}
}

// Now returns the clock's current time.
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d.
// Panics if d is negative to maintain monotonicity.
func (m *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("ManualClock.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
