package engine

import "sync/atomic"

// Clock is a Lamport clock. Every delta the engine emits is stamped with a
// strictly increasing value that also exceeds every value observed from
// peers, so a local edit always wins over what the user could see.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	t atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.t.Store(start)
	return c
}

// Next returns the next timestamp and advances the clock.
func (c *Clock) Next() int64 {
	return c.t.Add(1)
}

// Current returns the current timestamp without advancing.
func (c *Clock) Current() int64 {
	return c.t.Load()
}

// Observe raises the clock to at least seen.
func (c *Clock) Observe(seen int64) {
	for {
		cur := c.t.Load()
		if seen <= cur || c.t.CompareAndSwap(cur, seen) {
			return
		}
	}
}
