// Package progress accumulates mutated row counts across concurrent workers
// and narrates throughput.
package progress

import "sync/atomic"

// Counter is a run-wide total of mutated rows. The zero value is ready to use.
type Counter struct {
	total atomic.Int64
}

// Add increments the total and returns the value observed right after the add.
func (c *Counter) Add(n int64) int64 {
	return c.total.Add(n)
}

// Load returns the current total.
func (c *Counter) Load() int64 {
	return c.total.Load()
}
