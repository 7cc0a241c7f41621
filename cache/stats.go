package cache

import "github.com/jonwraymond/docketcache/store"

// Stats is a snapshot of cache state for status pages and the CLI.
type Stats struct {
	Hits       uint64
	Misses     uint64
	MemoryOnly bool

	// Groups holds live memory entries per group.
	Groups map[string]GroupStats

	// Disk counts record files under the root. Zero when memory-only.
	Disk store.Usage
}

// HitRatio is hits over all lookups, 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns counters, per-group memory usage and disk usage.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:       c.front.Hits(),
		Misses:     c.front.Misses(),
		MemoryOnly: c.MemoryOnly(),
		Groups:     c.front.Groups(),
	}
	if u, err := c.Usage(); err == nil {
		s.Disk = u
	}
	return s
}
