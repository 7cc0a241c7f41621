package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/docketcache/audit"
	"github.com/jonwraymond/docketcache/config"
	"github.com/jonwraymond/docketcache/observe"
	"github.com/jonwraymond/docketcache/store"
)

// DefaultGroup is used when a caller passes an empty group.
const DefaultGroup = "default"

// Cache is a two-level key/value cache: a Memory front over a FileStore.
//
// Reads try memory first and fall back to disk, copying disk hits into
// memory. Writes always land in memory and are written through to disk
// when the Policy allows it. Storage failures are absorbed: they are
// audited and logged, and the operation answers from memory.
//
// A Cache is safe for concurrent use within one process. Several processes
// may share a root, but read-modify-write operations (Add, Incr, ...) race
// across processes and the last writer wins.
type Cache struct {
	mu       sync.Mutex
	front    *Memory
	policy   *Policy
	resolver Resolver
	store    *store.FileStore
	audit    *audit.Log
	logger   observe.Logger
	mw       *observe.Middleware
	now      func() time.Time
	loads    singleflight.Group
	root     string
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	observer observe.Observer
	logger   observe.Logger
	now      func() time.Time
}

// WithObserver traces and meters every operation.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the structured logger. It wins over the observer's logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for expiry and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Cache from cfg.
//
// An invalid cfg is an error. A store root that cannot be created is not:
// the cache then runs memory-only for its whole life and says so in the
// audit trail and the log.
func New(cfg config.Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{
		now: o.now,
		mw:  observe.NopMiddleware(),
		policy: NewPolicy(PolicyConfig{
			GlobalGroups:        cfg.GlobalGroups,
			NonPersistentGroups: cfg.NonPersistentGroups,
			NonPersistentKeys:   cfg.NonPersistentKeys,
			KeyPrefix:           cfg.KeyPrefix,
			MaxTTL:              cfg.MaxTTL,
		}),
		audit: audit.New(audit.Config{
			Enabled:         cfg.Audit.Enabled,
			Path:            cfg.Audit.Path,
			MaxSize:         cfg.Audit.MaxSize,
			TruncateOnFlush: cfg.Audit.TruncateOnFlush,
			Now:             o.now,
		}),
	}
	c.front = NewMemory(c.now)

	c.logger = observe.NopLogger()
	if o.observer != nil {
		mw, err := observe.MiddlewareFromObserver(o.observer)
		if err != nil {
			return nil, fmt.Errorf("cache: observer: %w", err)
		}
		c.mw = mw
		c.logger = o.observer.Logger()
	}
	if o.logger != nil {
		c.logger = o.logger
	}
	c.mw = c.mw.WithLogger(c.logger)

	fs, err := store.NewFileStore(store.Config{Root: cfg.Root, Compress: cfg.Compress, Now: c.now})
	if err == nil {
		err = fs.Ensure()
	}
	if err != nil {
		c.root = cfg.Root
		c.degrade(context.Background(), err)
		return c, nil
	}

	c.store = fs
	c.root = fs.Root()
	c.resolver = NewResolver(fs.Root())
	return c, nil
}

func (c *Cache) degrade(ctx context.Context, err error) {
	c.logger.Warn(ctx, "store unavailable, running memory-only", observe.F("root", c.root), observe.F("error", err))
	c.auditError(ctx, "init", err)
}

func normGroup(group string) string {
	if strings.TrimSpace(group) == "" {
		return DefaultGroup
	}
	return group
}

func id(group, key string) string {
	return group + ":" + key
}

func (c *Cache) run(ctx context.Context, op, group string, fn observe.OpFunc) {
	_, _ = c.mw.Run(ctx, observe.OpMeta{Name: op, Group: group}, fn)
}

// persistent reports whether (group, key) goes to disk in this cache.
func (c *Cache) persistent(group, key string) bool {
	return c.store != nil && c.policy.Persistable(group, key)
}

func (c *Cache) auditError(ctx context.Context, what string, err error) {
	_ = c.audit.Record(ctx, audit.TagError, what, err.Error())
}

// Get returns the value stored under (group, key).
//
// force skips the memory front and rereads the store, for entries that go
// to disk. For memory-only entries it has no effect.
func (c *Cache) Get(ctx context.Context, key, group string, force bool) (any, bool) {
	group = normGroup(group)

	var (
		value any
		found bool
	)
	c.run(ctx, "get", group, func(ctx context.Context) (string, error) {
		var err error
		value, found, err = c.lookup(ctx, group, key, force)
		c.front.record(found)
		if found {
			return observe.OutcomeHit, err
		}
		return observe.OutcomeMiss, err
	})
	return value, found
}

// lookup reads memory then disk, copying a disk hit into memory. It does
// not touch the hit counters.
func (c *Cache) lookup(ctx context.Context, group, key string, force bool) (any, bool, error) {
	persist := c.persistent(group, key)
	if !force || !persist {
		if v, ok := c.front.peek(group, key); ok {
			return v, true, nil
		}
	}
	if !persist {
		return nil, false, nil
	}
	return c.load(ctx, group, key)
}

// load reads the record for (group, key). When the store holds no readable
// record the memory copy, if any, still answers: a failed write leaves the
// value in memory only.
func (c *Cache) load(ctx context.Context, group, key string) (any, bool, error) {
	path := c.resolver.Path(group, key)
	entry, err := c.store.Read(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		v, ok := c.front.peek(group, key)
		return v, ok, nil
	case errors.Is(err, store.ErrExpired):
		c.front.Remove(group, key)
		_ = c.audit.Record(ctx, audit.TagExpire, id(group, key), c.resolver.Name(group, key))
		return nil, false, nil
	case errors.Is(err, store.ErrMalformed):
		c.logger.Debug(ctx, "ignoring malformed record", observe.F("path", path), observe.F("error", err))
		v, ok := c.front.peek(group, key)
		return v, ok, nil
	default:
		c.auditError(ctx, id(group, key), err)
		v, ok := c.front.peek(group, key)
		return v, ok, err
	}

	if entry.Group != group || entry.Key != key {
		c.logger.Debug(ctx, "record collision", observe.F("path", path),
			observe.F("want", id(group, key)), observe.F("have", id(entry.Group, entry.Key)))
		return nil, false, ErrCollision
	}

	c.front.PutUntil(group, key, entry.Value, entry.ExpiresAt)
	_ = c.audit.Record(ctx, audit.TagHit, id(group, key), c.resolver.Name(group, key))
	return entry.Value, true, nil
}

// Set stores value under (group, key) for ttl. A zero ttl means no expiry
// unless the configured MaxTTL applies; negative ttl counts as zero.
//
// Set reports true once the value is in memory. A failed disk write is
// audited and logged but does not change the result.
//
// Values the record format cannot hold as-is, such as structs, are kept in
// their JSON form in memory as well as on disk, so a later Get returns a
// map[string]any rather than the original type.
func (c *Cache) Set(ctx context.Context, key string, value any, group string, ttl time.Duration) bool {
	group = normGroup(group)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.run(ctx, "set", group, func(ctx context.Context) (string, error) {
		return observe.OutcomeOK, c.set(ctx, group, key, value, ttl)
	})
	return true
}

func (c *Cache) set(ctx context.Context, group, key string, value any, ttl time.Duration) error {
	expiresAt := c.policy.ExpiresAt(c.now(), ttl)

	norm, kind, lossy, err := store.Normalize(value)
	if err != nil {
		c.front.PutUntil(group, key, value, expiresAt)
		if c.persistent(group, key) {
			c.auditError(ctx, id(group, key), err)
			return err
		}
		return nil
	}
	if lossy {
		c.logger.Debug(ctx, "value stored in generic form", observe.F("group", group), observe.F("type", fmt.Sprintf("%T", value)))
	}
	c.front.PutUntil(group, key, norm, expiresAt)

	if !c.persistent(group, key) {
		return nil
	}
	return c.persist(ctx, &store.Entry{Group: group, Key: key, Kind: kind, ExpiresAt: expiresAt, Value: norm})
}

func (c *Cache) persist(ctx context.Context, e *store.Entry) error {
	name := c.resolver.Name(e.Group, e.Key)
	if err := c.store.Write(ctx, c.resolver.Path(e.Group, e.Key), e); err != nil {
		c.auditError(ctx, id(e.Group, e.Key), err)
		return err
	}
	_ = c.audit.Record(ctx, audit.TagSet, id(e.Group, e.Key), name)
	return nil
}

// Add stores value only if (group, key) holds nothing.
func (c *Cache) Add(ctx context.Context, key string, value any, group string, ttl time.Duration) bool {
	return c.conditionalSet(ctx, "add", key, value, group, ttl, false)
}

// Replace stores value only if (group, key) already holds something.
func (c *Cache) Replace(ctx context.Context, key string, value any, group string, ttl time.Duration) bool {
	return c.conditionalSet(ctx, "replace", key, value, group, ttl, true)
}

func (c *Cache) conditionalSet(ctx context.Context, op, key string, value any, group string, ttl time.Duration, wantPresent bool) bool {
	group = normGroup(group)
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := false
	c.run(ctx, op, group, func(ctx context.Context) (string, error) {
		_, present, err := c.lookup(ctx, group, key, false)
		if present != wantPresent {
			return observe.OutcomeNoop, err
		}
		stored = true
		return observe.OutcomeOK, c.set(ctx, group, key, value, ttl)
	})
	return stored
}

// Delete removes (group, key) from memory and disk. It reports whether a
// live value was removed from either.
func (c *Cache) Delete(ctx context.Context, key, group string) bool {
	group = normGroup(group)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	c.run(ctx, "delete", group, func(ctx context.Context) (string, error) {
		var err error
		removed, err = c.delete(ctx, group, key)
		if removed {
			return observe.OutcomeOK, err
		}
		return observe.OutcomeNoop, err
	})
	return removed
}

func (c *Cache) delete(ctx context.Context, group, key string) (bool, error) {
	removed := c.front.Remove(group, key)
	if !c.persistent(group, key) {
		return removed, nil
	}

	path := c.resolver.Path(group, key)
	entry, err := c.store.Read(ctx, path)
	switch {
	case err == nil:
		if entry.Group != group || entry.Key != key {
			return removed, nil
		}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
		return removed, nil
	case errors.Is(err, store.ErrMalformed):
		// Nothing valid lives there; clear the slot anyway.
	default:
		c.auditError(ctx, id(group, key), err)
		return removed, err
	}

	if err := c.store.Remove(ctx, path); err != nil {
		c.auditError(ctx, id(group, key), err)
		return removed, err
	}
	_ = c.audit.Record(ctx, audit.TagDelete, id(group, key), c.resolver.Name(group, key))
	return removed || entry != nil, nil
}

// Incr adds offset to the number stored under (group, key).
func (c *Cache) Incr(ctx context.Context, key string, offset int64, group string) (int64, bool) {
	return c.adjust(ctx, "incr", key, offset, group)
}

// Decr subtracts offset from the number stored under (group, key).
func (c *Cache) Decr(ctx context.Context, key string, offset int64, group string) (int64, bool) {
	if offset == math.MinInt64 {
		offset = math.MaxInt64
	} else {
		offset = -offset
	}
	return c.adjust(ctx, "decr", key, offset, group)
}

// adjust applies delta to a stored counter. A value that is not numeric
// counts as 0 and the result never drops below 0. Only the value is
// rewritten; the expiry stays as it was.
func (c *Cache) adjust(ctx context.Context, op, key string, delta int64, group string) (int64, bool) {
	group = normGroup(group)
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		result int64
		ok     bool
	)
	c.run(ctx, op, group, func(ctx context.Context) (string, error) {
		cur, present, err := c.lookup(ctx, group, key, false)
		if !present {
			return observe.OutcomeMiss, err
		}
		result, ok = saturatingAdd(toInt64(cur), delta), true
		if result < 0 {
			result = 0
		}

		expiresAt, _ := c.front.expiry(group, key)
		c.front.PutUntil(group, key, result, expiresAt)
		if !c.persistent(group, key) {
			return observe.OutcomeOK, nil
		}

		path := c.resolver.Path(group, key)
		err = c.store.Rewrite(ctx, path, result)
		if errors.Is(err, store.ErrNotFound) {
			return observe.OutcomeOK, c.persist(ctx, &store.Entry{Group: group, Key: key, ExpiresAt: expiresAt, Value: result})
		}
		if err != nil {
			c.auditError(ctx, id(group, key), err)
			return observe.OutcomeOK, err
		}
		_ = c.audit.Record(ctx, audit.TagSet, id(group, key), c.resolver.Name(group, key))
		return observe.OutcomeOK, nil
	})
	return result, ok
}

func saturatingAdd(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

// toInt64 reads a stored value as an integer. Numeric strings are parsed,
// floats are truncated, true is 1, and anything else is 0.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return floatToInt(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0
}

func floatToInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// Close releases the cache. Values already written stay on disk.
func (c *Cache) Close() error {
	return nil
}

// Root is the configured store directory.
func (c *Cache) Root() string { return c.root }

// MemoryOnly reports whether the store root was unusable at startup.
func (c *Cache) MemoryOnly() bool { return c.store == nil }

// SentinelExists reports whether the store sentinel is present.
func (c *Cache) SentinelExists() bool {
	return c.store != nil && c.store.SentinelExists()
}

// Usage counts the record files on disk.
func (c *Cache) Usage() (store.Usage, error) {
	if c.store == nil {
		return store.Usage{}, ErrMemoryOnly
	}
	return c.store.Usage()
}

// Hits returns the cumulative number of successful Gets.
func (c *Cache) Hits() uint64 { return c.front.Hits() }

// Misses returns the cumulative number of unsuccessful Gets.
func (c *Cache) Misses() uint64 { return c.front.Misses() }

// Policy exposes the exclusion and TTL policy.
func (c *Cache) Policy() *Policy { return c.policy }

// AddGlobalGroups adds groups shared by every tenant.
func (c *Cache) AddGlobalGroups(groups ...string) { c.policy.AddGlobalGroups(groups...) }

// AddNonPersistentGroups adds groups that never reach disk.
func (c *Cache) AddNonPersistentGroups(groups ...string) { c.policy.AddNonPersistentGroups(groups...) }

// AddNonPersistentKeys adds keys that never reach disk.
func (c *Cache) AddNonPersistentKeys(keys ...string) { c.policy.AddNonPersistentKeys(keys...) }

// Path returns the record file that (group, key) maps to, or "" when the
// cache is memory-only.
func (c *Cache) Path(key, group string) string {
	if c.store == nil {
		return ""
	}
	return c.resolver.Path(normGroup(group), key)
}
