package concurrent

import "sync/atomic"

// AtomicCounter provides sequentially consistent counter operations
// (section 4.1), backed directly by sync/atomic.
type AtomicCounter struct {
	v atomic.Int64
}

// NewAtomicCounter returns a counter initialized to initial.
func NewAtomicCounter(initial int64) *AtomicCounter {
	c := &AtomicCounter{}
	c.v.Store(initial)
	return c
}

// Get returns the current value.
func (c *AtomicCounter) Get() int64 { return c.v.Load() }

// Increment adds one and returns the new value.
func (c *AtomicCounter) Increment() int64 { return c.v.Add(1) }

// Decrement subtracts one and returns the new value.
func (c *AtomicCounter) Decrement() int64 { return c.v.Add(-1) }

// Add adds n and returns the new value.
func (c *AtomicCounter) Add(n int64) int64 { return c.v.Add(n) }

// Sub subtracts n and returns the new value.
func (c *AtomicCounter) Sub(n int64) int64 { return c.v.Add(-n) }

// CompareAndSwap sets new if the current value equals expected, and
// always returns the value observed before the attempt.
func (c *AtomicCounter) CompareAndSwap(expected, new int64) int64 {
	for {
		prev := c.v.Load()
		if prev != expected {
			return prev
		}
		if c.v.CompareAndSwap(expected, new) {
			return prev
		}
	}
}

// Reset sets the counter back to zero.
func (c *AtomicCounter) Reset() { c.v.Store(0) }
