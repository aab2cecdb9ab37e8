package store

import "sync/atomic"

// Clock hands out ICNs (item change numbers): a monotonic logical clock that
// stamps every committed write.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the writer goroutine calls Next; readers call Current.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock resuming at a persisted ICN.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next ICN and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued ICN.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
