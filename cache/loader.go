package cache

import (
	"context"
	"time"
)

// LoaderFunc produces a value on a cache miss.
type LoaderFunc func(ctx context.Context) (any, error)

// Remember returns the cached value for (group, key), or calls load, stores
// its result for ttl and returns it. Concurrent misses for the same entry
// share one load call. Errors from load are returned and not cached.
func (c *Cache) Remember(ctx context.Context, key, group string, ttl time.Duration, load LoaderFunc) (any, error) {
	group = normGroup(group)
	if v, ok := c.Get(ctx, key, group, false); ok {
		return v, nil
	}

	v, err, _ := c.loads.Do(id(group, key), func() (any, error) {
		if v, ok := c.front.peek(group, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v, group, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
