// Package cache is a process-local object cache persisted to disk.
//
// Values live in a Memory front for the life of the process and, unless the
// Policy keeps them in memory, in one record file per entry under a store
// root. Entries carry a TTL that is checked when they are read; nothing runs
// in the background.
//
//	c, err := cache.New(config.Default())
//	if err != nil {
//		return err
//	}
//	c.Set(ctx, "alloptions", opts, "options", time.Hour)
//	v, ok := c.Get(ctx, "alloptions", "options", false)
//
// Storage problems never reach callers. Operations report plain booleans,
// and failures are written to the audit trail and the structured log.
package cache
