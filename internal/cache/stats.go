package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of a cache instance's counters. Counters
// are scoped to the instance, never process-wide.
type Stats struct {
	// Hits counts calls answered from a completed entry.
	Hits int64 `json:"hits"`
	// Misses counts calls that became the computing party.
	Misses int64 `json:"misses"`
	// Collapsed counts calls that waited on another caller's computation.
	Collapsed int64 `json:"collapsed"`
	// Failures counts computations that returned an error or panicked.
	Failures int64 `json:"failures"`
	// InFlight is the number of computations currently running.
	InFlight int64 `json:"inFlight"`
}

type statsCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	collapsed atomic.Int64
	failures  atomic.Int64
	inFlight  atomic.Int64
}

func (c *statsCounters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Collapsed: c.collapsed.Load(),
		Failures:  c.failures.Load(),
		InFlight:  c.inFlight.Load(),
	}
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache[K, V]) Stats() Stats {
	return c.stats.snapshot()
}
