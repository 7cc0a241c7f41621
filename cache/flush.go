package cache

import (
	"context"
	"fmt"

	"github.com/jonwraymond/docketcache/audit"
	"github.com/jonwraymond/docketcache/observe"
)

// FlushResult reports a Flush.
type FlushResult struct {
	// OK is true when the store sentinel still exists afterwards.
	OK bool

	// Removed counts deleted record files.
	Removed int

	// Skipped counts files that could not be deleted.
	Skipped int
}

// Flush empties the memory front and deletes every file under the store
// root except the sentinel. Files that cannot be deleted are skipped.
func (c *Cache) Flush(ctx context.Context) FlushResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res FlushResult
	c.run(ctx, "flush", "", func(ctx context.Context) (string, error) {
		c.front.Clear()
		if c.store == nil {
			c.auditError(ctx, "flush", ErrMemoryOnly)
			return observe.OutcomeError, ErrMemoryOnly
		}

		sweep, err := c.store.Sweep()
		res = FlushResult{OK: sweep.SentinelIntact, Removed: sweep.Removed, Skipped: sweep.Skipped}
		if err != nil {
			c.auditError(ctx, "flush", err)
			return observe.OutcomeError, err
		}
		payload := fmt.Sprintf("removed=%d skipped=%d", sweep.Removed, sweep.Skipped)
		if !res.OK {
			c.auditError(ctx, "flush", fmt.Errorf("sentinel missing after flush: %s", payload))
			return observe.OutcomeError, nil
		}
		_ = c.audit.Record(ctx, audit.TagFlush, "all", payload)
		return observe.OutcomeOK, nil
	})
	return res
}
