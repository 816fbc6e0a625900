// Package clock provides the monotonic time source the control core reads.
package clock

import (
	"sync"
	"time"
)

// Clock yields a strictly non-decreasing nanosecond timestamp.
type Clock interface {
	NowNs() int64
}

// Monotonic reads the runtime monotonic clock. Timestamps are relative to
// process start, which is all the core needs: it only ever compares and
// subtracts them.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a monotonic clock anchored at the current instant.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (c *Monotonic) NowNs() int64 {
	return time.Since(c.start).Nanoseconds()
}

// Manual is a settable clock for deterministic tests.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a manual clock at the given instant.
func NewManual(nowNs int64) *Manual {
	return &Manual{now: nowNs}
}

func (c *Manual) NowNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d nanoseconds.
func (c *Manual) Advance(d int64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set jumps the clock to nowNs. Moving backwards is ignored so the clock
// stays monotonic.
func (c *Manual) Set(nowNs int64) {
	c.mu.Lock()
	if nowNs > c.now {
		c.now = nowNs
	}
	c.mu.Unlock()
}
