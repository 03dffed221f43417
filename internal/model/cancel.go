package model

import "sync/atomic"

// CancelFlag is a cooperative cancellation signal shared between a poll run and its device fetches.
//
// Setting the flag does not abort in flight work, it is polled before new work is started.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel sets the flag.
func (c *CancelFlag) Cancel() {
	c.set.Store(true)
}

// Canceled returns true when the flag is set.
func (c *CancelFlag) Canceled() bool {
	return c != nil && c.set.Load()
}

// Reset clears the flag.
func (c *CancelFlag) Reset() {
	c.set.Store(false)
}
