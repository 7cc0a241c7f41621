package health

import (
	"context"
	"fmt"
	"os"

	"github.com/jonwraymond/docketcache/store"
)

// StoreProbe is what StoreChecker needs from a cache.
type StoreProbe interface {
	// Root is the store directory.
	Root() string

	// SentinelExists reports whether the root's sentinel file is present.
	SentinelExists() bool

	// Usage counts entry files and their bytes.
	Usage() (store.Usage, error)

	// MemoryOnly reports whether the cache gave up on its store.
	MemoryOnly() bool
}

// StoreChecker reports on the persistent layer.
//
//   - unhealthy: the root is missing or is not a directory
//   - degraded: the cache runs memory-only, or the sentinel is gone
//   - healthy: otherwise, with entry count and bytes as details
type StoreChecker struct {
	probe StoreProbe
}

// NewStoreChecker creates a StoreChecker.
func NewStoreChecker(probe StoreProbe) *StoreChecker {
	return &StoreChecker{probe: probe}
}

// Name returns the name of this checker.
func (c *StoreChecker) Name() string {
	return "store"
}

// Check performs the store health check.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	root := c.probe.Root()
	details := map[string]any{
		"root":        root,
		"memory_only": c.probe.MemoryOnly(),
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", root)
		}
		return Unhealthy("store root unavailable", fmt.Errorf("%w: %w", ErrRootMissing, err)).WithDetails(details)
	}

	if u, err := c.probe.Usage(); err == nil {
		details["entries"] = u.Entries
		details["bytes"] = u.Bytes
	}

	sentinel := c.probe.SentinelExists()
	details["sentinel"] = sentinel

	switch {
	case c.probe.MemoryOnly():
		return Degraded("cache is running memory-only").WithDetails(details)
	case !sentinel:
		return Degraded("store sentinel missing").WithDetails(details)
	default:
		return Healthy("store ready").WithDetails(details)
	}
}
