package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_ZeroStartsAtFixedTime(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Equal(t, time.Unix(1000000000, 0), c.Now())
}

func TestManualClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, start.Add(250*time.Millisecond), c.Now())

	c.Advance(0)
	assert.Equal(t, start.Add(250*time.Millisecond), c.Now())
}

func TestManualClock_NegativeAdvancePanics(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Panics(t, func() { c.Advance(-time.Second) })
}

func TestManualClock_ConcurrentAccess(t *testing.T) {
	c := NewManualClock(time.Time{})
	start := c.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(time.Millisecond)
				_ = c.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(800*time.Millisecond), c.Now())
}

func TestSystemClock_Monotonic(t *testing.T) {
	var c SystemClock
	a := c.Now()
	b := c.Now()
	assert.False(t, b.Before(a))
}
