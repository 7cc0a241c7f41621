package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/docketcache/config"
	"github.com/jonwraymond/docketcache/observe"
	"github.com/jonwraymond/docketcache/store"
)

type clock struct {
	now atomic.Int64
}

func newClock() *clock {
	c := &clock{}
	c.now.Store(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *clock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *clock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Root = filepath.Join(t.TempDir(), "docket")
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	return cfg
}

func newTestCache(t *testing.T, cfg config.Config, clk *clock) *Cache {
	t.Helper()
	c, err := New(cfg, WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func recordFiles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), store.Extension) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Root = ""
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_CreatesRootAndSentinel(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCache(t, cfg, newClock())

	assert.False(t, c.MemoryOnly())
	assert.True(t, c.SentinelExists())
	_, err := os.Stat(filepath.Join(cfg.Root, store.SentinelName))
	assert.NoError(t, err)
}

func TestCache_RoundTripAcrossInstances(t *testing.T) {
	cfg := testConfig(t)
	clk := newClock()
	ctx := context.Background()

	value := store.NewObject("WP_Post").
		Set("ID", int64(12)).
		Set("title", "Hello").
		Set("meta", map[string]any{"views": int64(3), "ratio": 0.25})

	first := newTestCache(t, cfg, clk)
	require.True(t, first.Set(ctx, "post-12", value, "posts", 0))

	second := newTestCache(t, cfg, clk)
	got, ok := second.Get(ctx, "post-12", "posts", false)
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, uint64(1), second.Hits())
}

func TestCache_DefaultGroup(t *testing.T) {
	c := newTestCache(t, testConfig(t), newClock())
	ctx := context.Background()

	c.Set(ctx, "k", "v", "", 0)
	got, ok := c.Get(ctx, "k", DefaultGroup, false)
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Equal(t, c.Path("k", ""), c.Path("k", DefaultGroup))
}

func TestCache_TTLBoundary(t *testing.T) {
	cfg := testConfig(t)
	clk := newClock()
	ctx := context.Background()
	c := newTestCache(t, cfg, clk)

	require.True(t, c.Set(ctx, "token", "abc", "transient", time.Second))
	path := c.Path("token", "transient")
	require.FileExists(t, path)

	clk.Advance(999 * time.Millisecond)
	_, ok := c.Get(ctx, "token", "transient", false)
	assert.True(t, ok, "still live just before the deadline")

	clk.Advance(time.Millisecond)
	_, ok = c.Get(ctx, "token", "transient", false)
	assert.False(t, ok, "memory entry expires with the record")

	// The expired record was dropped from disk on that read.
	assert.NoFileExists(t, path)
	other := newTestCache(t, cfg, clk)
	_, ok = other.Get(ctx, "token", "transient", false)
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

func TestCache_MaxTTL(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTTL = time.Minute
	clk := newClock()
	ctx := context.Background()
	c := newTestCache(t, cfg, clk)

	c.Set(ctx, "forever", 1, "g", 0)
	c.Set(ctx, "long", 1, "g", 24*time.Hour)
	c.Set(ctx, "negative", 1, "g", -time.Second)

	clk.Advance(time.Minute)
	for _, key := range []string{"forever", "long", "negative"} {
		_, ok := c.Get(ctx, key, "g", false)
		assert.False(t, ok, key)
	}
}

func TestCache_NonPersistentBypass(t *testing.T) {
	cfg := testConfig(t)
	cfg.NonPersistentGroups = []string{"counts"}
	cfg.NonPersistentKeys = []string{"session"}
	cfg.KeyPrefix = "site2_"
	clk := newClock()
	ctx := context.Background()

	c := newTestCache(t, cfg, clk)
	c.Set(ctx, "posts", 4, "counts", 0)
	c.Set(ctx, "site2_session", "s", "users", 0)

	v, ok := c.Get(ctx, "posts", "counts", false)
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
	assert.Empty(t, recordFiles(t, cfg.Root))

	other := newTestCache(t, cfg, clk)
	_, ok = other.Get(ctx, "posts", "counts", false)
	assert.False(t, ok)
	_, ok = other.Get(ctx, "site2_session", "users", false)
	assert.False(t, ok)
}

func TestCache_RuntimePolicyChanges(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCache(t, cfg, newClock())
	ctx := context.Background()

	c.Set(ctx, "before", 1, "late", 0)
	c.AddNonPersistentGroups("late")
	c.Set(ctx, "after", 1, "late", 0)

	// The earlier file stays; only later writes are affected.
	assert.FileExists(t, c.Path("before", "late"))
	assert.NoFileExists(t, c.Path("after", "late"))
	assert.Contains(t, c.Policy().NonPersistentGroups(), "late")
}

func TestCache_Flush(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, k, "g", 0)
	}
	nested := filepath.Join(cfg.Root, "old")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "stale.json"), []byte("x"), 0o644))

	res := c.Flush(ctx)
	assert.True(t, res.OK)
	assert.Equal(t, 4, res.Removed)
	assert.Empty(t, recordFiles(t, cfg.Root))
	assert.True(t, c.SentinelExists())

	_, ok := c.Get(ctx, "a", "g", false)
	assert.False(t, ok, "memory front is cleared too")
}

func TestCache_FlushWithoutSentinel(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())
	require.NoError(t, os.Remove(filepath.Join(cfg.Root, store.SentinelName)))

	res := c.Flush(ctx)
	assert.False(t, res.OK)

	// The next write restores it.
	c.Set(ctx, "k", "v", "g", 0)
	assert.True(t, c.SentinelExists())
}

func TestCache_IncrDecr(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	_, ok := c.Incr(ctx, "missing", 1, "counters")
	assert.False(t, ok)

	c.Set(ctx, "hits", 3, "counters", 0)
	n, ok := c.Incr(ctx, "hits", 2, "counters")
	require.True(t, ok)
	assert.Equal(t, int64(5), n)

	n, ok = c.Decr(ctx, "hits", 10, "counters")
	require.True(t, ok)
	assert.Equal(t, int64(0), n, "clamped at zero")

	c.Set(ctx, "label", "not a number", "counters", 0)
	n, _ = c.Incr(ctx, "label", 4, "counters")
	assert.Equal(t, int64(4), n, "non-numeric counts as zero")

	c.Set(ctx, "text", "41", "counters", 0)
	n, _ = c.Incr(ctx, "text", 1, "counters")
	assert.Equal(t, int64(42), n, "numeric strings are parsed")

	other := newTestCache(t, cfg, newClock())
	v, ok := other.Get(ctx, "text", "counters", false)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestCache_IncrKeepsExpiry(t *testing.T) {
	cfg := testConfig(t)
	clk := newClock()
	ctx := context.Background()
	c := newTestCache(t, cfg, clk)

	c.Set(ctx, "n", 1, "g", 10*time.Second)
	clk.Advance(5 * time.Second)
	_, ok := c.Incr(ctx, "n", 1, "g")
	require.True(t, ok)

	entry, err := readRecord(t, cfg, c.Path("n", "g"), clk)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Unix()+5, entry.ExpiresAt)

	clk.Advance(5 * time.Second)
	_, ok = newTestCache(t, cfg, clk).Get(ctx, "n", "g", false)
	assert.False(t, ok)
}

func readRecord(t *testing.T, cfg config.Config, path string, clk *clock) (*store.Entry, error) {
	t.Helper()
	fs, err := store.NewFileStore(store.Config{Root: cfg.Root, Now: clk.Now})
	require.NoError(t, err)
	return fs.Read(context.Background(), path)
}

func TestCache_AddReplace(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	assert.False(t, c.Replace(ctx, "k", "x", "g", 0), "replace needs an existing value")
	assert.True(t, c.Add(ctx, "k", "first", "g", 0))
	assert.False(t, c.Add(ctx, "k", "second", "g", 0), "add refuses an existing value")
	assert.True(t, c.Replace(ctx, "k", "third", "g", 0))

	v, _ := c.Get(ctx, "k", "g", false)
	assert.Equal(t, "third", v)

	// Presence on disk alone counts.
	other := newTestCache(t, cfg, newClock())
	assert.False(t, other.Add(ctx, "k", "fourth", "g", 0))
}

func TestCache_Delete(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	assert.False(t, c.Delete(ctx, "nope", "g"))

	c.Set(ctx, "k", "v", "g", 0)
	path := c.Path("k", "g")
	assert.True(t, c.Delete(ctx, "k", "g"))
	assert.NoFileExists(t, path)
	_, ok := c.Get(ctx, "k", "g", false)
	assert.False(t, ok)

	// A value only on disk is still deletable.
	c.Set(ctx, "k2", "v", "g", 0)
	other := newTestCache(t, cfg, newClock())
	assert.True(t, other.Delete(ctx, "k2", "g"))
}

func TestCache_ForceRereadsStore(t *testing.T) {
	cfg := testConfig(t)
	clk := newClock()
	ctx := context.Background()

	a := newTestCache(t, cfg, clk)
	b := newTestCache(t, cfg, clk)

	a.Set(ctx, "k", "one", "g", 0)
	v, _ := b.Get(ctx, "k", "g", false)
	assert.Equal(t, "one", v)

	a.Set(ctx, "k", "two", "g", 0)
	v, _ = b.Get(ctx, "k", "g", false)
	assert.Equal(t, "one", v, "memory front answers without force")
	v, _ = b.Get(ctx, "k", "g", true)
	assert.Equal(t, "two", v)
}

func TestCache_DeepCopy(t *testing.T) {
	c := newTestCache(t, testConfig(t), newClock())
	ctx := context.Background()

	in := map[string]any{"tags": []any{"a"}}
	c.Set(ctx, "k", in, "g", 0)
	in["tags"].([]any)[0] = "mutated"

	out, _ := c.Get(ctx, "k", "g", false)
	assert.Equal(t, "a", out.(map[string]any)["tags"].([]any)[0])

	out.(map[string]any)["tags"] = nil
	again, _ := c.Get(ctx, "k", "g", false)
	assert.NotNil(t, again.(map[string]any)["tags"])
}

func TestCache_MalformedAndCollision(t *testing.T) {
	cfg := testConfig(t)
	clk := newClock()
	ctx := context.Background()
	c := newTestCache(t, cfg, clk)

	path := c.Path("k", "g")
	require.NoError(t, os.WriteFile(path, []byte("<?php return 1;"), 0o644))
	_, ok := c.Get(ctx, "k", "g", false)
	assert.False(t, ok, "malformed content is a miss")

	// A record for another key sitting at this path.
	fs, err := store.NewFileStore(store.Config{Root: cfg.Root, Now: clk.Now})
	require.NoError(t, err)
	require.NoError(t, fs.Write(ctx, path, &store.Entry{Group: "g", Key: "other", Value: "x"}))
	_, ok = c.Get(ctx, "k", "g", false)
	assert.False(t, ok, "collision is a miss")
	assert.False(t, c.Delete(ctx, "k", "g"))
	assert.FileExists(t, path, "another key's record is left alone")
}

func TestCache_MemoryOnly(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := testConfig(t)
	cfg.Root = filepath.Join(blocker, "docket")
	cfg.Audit.Enabled = true
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	assert.True(t, c.MemoryOnly())
	assert.True(t, c.Set(ctx, "k", "v", "g", 0))
	v, ok := c.Get(ctx, "k", "g", false)
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Empty(t, c.Path("k", "g"))
	assert.False(t, c.Flush(ctx).OK)

	log, err := os.ReadFile(cfg.Audit.Path)
	require.NoError(t, err)
	assert.Contains(t, string(log), `error: "init"`)
}

func TestCache_WriteFailureKeepsMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	ctx := context.Background()

	var logs bytes.Buffer
	c, err := New(cfg, WithClock(newClock().Now), WithLogger(observe.NewLoggerWithWriter("debug", &logs)))
	require.NoError(t, err)

	// A directory where the record file belongs makes every write fail.
	path := c.Path("k", "g")
	require.NoError(t, os.Mkdir(path, 0o755))

	assert.True(t, c.Set(ctx, "k", "v", "g", 0))

	v, ok := c.Get(ctx, "k", "g", false)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	v, ok = c.Get(ctx, "k", "g", true)
	require.True(t, ok, "force falls back to the memory copy")
	assert.Equal(t, "v", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "no record was written")

	log, err := os.ReadFile(cfg.Audit.Path)
	require.NoError(t, err)
	assert.Contains(t, string(log), `error: "g:k"`)
	assert.NotContains(t, string(log), `set: "g:k"`)

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"op":"set"`)
}

func TestCache_ForceAfterRecordRemoved(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	c.Set(ctx, "k", "v", "g", 0)
	require.NoError(t, os.Remove(c.Path("k", "g")))

	v, ok := c.Get(ctx, "k", "g", true)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_UnsupportedValue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	ch := make(chan int)
	assert.True(t, c.Set(ctx, "k", ch, "g", 0), "memory still takes it")
	v, ok := c.Get(ctx, "k", "g", false)
	require.True(t, ok)
	assert.Equal(t, ch, v)
	assert.Empty(t, recordFiles(t, cfg.Root))

	log, err := os.ReadFile(cfg.Audit.Path)
	require.NoError(t, err)
	assert.Contains(t, string(log), `error: "g:k"`)
}

func TestCache_LossyValue(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	c.Set(ctx, "p", point{X: 3}, "g", 0)
	v, _ := c.Get(ctx, "p", "g", false)
	assert.Equal(t, map[string]any{"x": int64(3)}, v)
}

func TestCache_AuditTrail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	clk := newClock()
	ctx := context.Background()

	c := newTestCache(t, cfg, clk)
	c.Set(ctx, "k", "v", "g", time.Second)
	newTestCache(t, cfg, clk).Get(ctx, "k", "g", false)
	c.Delete(ctx, "k", "g")
	c.Set(ctx, "t", "v", "g", time.Second)
	clk.Advance(time.Second)
	newTestCache(t, cfg, clk).Get(ctx, "t", "g", false)
	c.Flush(ctx)

	data, err := os.ReadFile(cfg.Audit.Path)
	require.NoError(t, err)
	log := string(data)
	name := c.resolver.Name("g", "k")
	for _, want := range []string{
		`set: "g:k" "` + name + `"`,
		`hit: "g:k" "` + name + `"`,
		`delete: "g:k"`,
		`expire: "g:t"`,
		`flush: "all"`,
	} {
		assert.Contains(t, log, want)
	}
}

func TestCache_Stats(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c := newTestCache(t, cfg, newClock())

	c.Set(ctx, "a", "x", "posts", 0)
	c.Set(ctx, "b", "y", "posts", 0)
	c.Set(ctx, "c", 1, "terms", 0)
	c.Get(ctx, "a", "posts", false)
	c.Get(ctx, "zz", "posts", false)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRatio(), 1e-9)
	assert.Equal(t, 2, s.Groups["posts"].Entries)
	assert.Positive(t, s.Groups["posts"].Bytes)
	assert.Equal(t, 3, s.Disk.Entries)
	assert.False(t, s.MemoryOnly)
}
