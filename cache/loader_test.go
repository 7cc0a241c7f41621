package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemember_LoadsOnce(t *testing.T) {
	c := newTestCache(t, testConfig(t), newClock())
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "loaded", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Remember(ctx, "k", "g", time.Minute, load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "loaded", r)
	}

	before := calls.Load()
	v, err := c.Remember(ctx, "k", "g", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, before, calls.Load(), "cached value skips the loader")
}

func TestRemember_ErrorNotCached(t *testing.T) {
	c := newTestCache(t, testConfig(t), newClock())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := c.Remember(ctx, "k", "g", 0, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(ctx, "k", "g", false)
	assert.False(t, ok)

	v, err := c.Remember(ctx, "k", "g", 0, func(context.Context) (any, error) { return int64(7), nil })
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}
