package core

import "sync"

// ActionCounter tracks the monotone per-frame action count spanning tool
// leaves and spawns alike. Scoped to one executor instance so concurrent
// independent tasks never interfere.
type ActionCounter struct {
	mu       sync.Mutex
	count    int
	interval int
}

// NewActionCounter creates a counter with a consolidation interval.
// If interval <= 0, consolidation is never due.
func NewActionCounter(interval int) *ActionCounter {
	return &ActionCounter{interval: interval}
}

// RestoreActionCounter resumes a counter at a previously persisted count.
func RestoreActionCounter(interval, count int) *ActionCounter {
	return &ActionCounter{interval: interval, count: count}
}

// Increment increases the counter and reports whether a consolidation is due,
// i.e. the new count is a positive multiple of the configured interval.
func (c *ActionCounter) Increment() (count int, consolidate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	due := c.interval > 0 && c.count%c.interval == 0
	return c.count, due
}

// Count returns the current number of executed actions.
func (c *ActionCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
