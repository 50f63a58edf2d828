package concurrent

import (
	"sync/atomic"
)

// Counter is a lock-free counter using atomic operations. The buffer pool
// keeps one per statistic (hits, misses, evictions) so that reading stats
// never takes the pool mutex.
type Counter struct {
	value uint64
}

// NewCounter creates a new counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1 and returns the new value.
func (c *Counter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Add increments the counter by delta and returns the new value.
func (c *Counter) Add(delta uint64) uint64 {
	return atomic.AddUint64(&c.value, delta)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

// Reset sets the counter to 0 and returns the previous value.
func (c *Counter) Reset() uint64 {
	return atomic.SwapUint64(&c.value, 0)
}
