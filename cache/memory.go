package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/docketcache/store"
)

// FrontStats is a snapshot of Memory counters.
type FrontStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// GroupStats describes one group held in memory.
type GroupStats struct {
	Entries int
	// Bytes is the approximate encoded size of the group's values.
	Bytes int64
}

// Memory is the per-process front layer: a map of groups to entries that
// shields the store from repeated reads.
//
// Composite values are deep-copied on the way in and on the way out, so a
// caller mutating what it stored or fetched never changes the cached copy.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[string]memEntry
	now    func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

type memEntry struct {
	value     any
	expiresAt int64
}

func (e memEntry) expired(now time.Time) bool {
	return e.expiresAt != 0 && now.Unix() >= e.expiresAt
}

// NewMemory creates an empty Memory. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{groups: make(map[string]map[string]memEntry), now: now}
}

// Get returns a copy of the live value and counts a hit or a miss.
func (m *Memory) Get(group, key string) (any, bool) {
	v, ok := m.peek(group, key)
	m.record(ok)
	return v, ok
}

// Has reports whether a live value exists, without touching the counters.
func (m *Memory) Has(group, key string) bool {
	_, ok := m.lookup(group, key)
	return ok
}

// Put stores a copy of value with no expiry.
func (m *Memory) Put(group, key string, value any) {
	m.PutUntil(group, key, value, 0)
}

// PutUntil stores a copy of value that expires at the unix second expiresAt
// (0 means never).
func (m *Memory) PutUntil(group, key string, value any, expiresAt int64) {
	e := memEntry{value: store.Clone(value), expiresAt: expiresAt}

	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		g = make(map[string]memEntry)
		m.groups[group] = g
	}
	g[key] = e
}

// Remove deletes an entry and reports whether a live one was there.
func (m *Memory) Remove(group, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		return false
	}
	e, ok := g[key]
	if !ok {
		return false
	}
	delete(g, key)
	if len(g) == 0 {
		delete(m.groups, group)
	}
	return !e.expired(m.now())
}

// Clear drops every entry. Counters are kept.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.groups = make(map[string]map[string]memEntry)
	m.mu.Unlock()
}

// Hits returns the cumulative hit count.
func (m *Memory) Hits() uint64 { return m.hits.Load() }

// Misses returns the cumulative miss count.
func (m *Memory) Misses() uint64 { return m.misses.Load() }

// Stats returns the counters and the number of live entries.
func (m *Memory) Stats() FrontStats {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, g := range m.groups {
		for _, e := range g {
			if !e.expired(now) {
				n++
			}
		}
	}
	return FrontStats{Hits: m.Hits(), Misses: m.Misses(), Entries: n}
}

// Groups reports live entries per group, with an approximate encoded size.
func (m *Memory) Groups() map[string]GroupStats {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]GroupStats, len(m.groups))
	for name, g := range m.groups {
		var gs GroupStats
		for key, e := range g {
			if e.expired(now) {
				continue
			}
			gs.Entries++
			gs.Bytes += approxSize(name, key, e.value)
		}
		if gs.Entries > 0 {
			out[name] = gs
		}
	}
	return out
}

// GroupNames returns the groups with live entries, sorted.
func (m *Memory) GroupNames() []string {
	groups := m.Groups()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func approxSize(group, key string, v any) int64 {
	data, err := store.Marshal(&store.Entry{Group: group, Key: key, Value: v}, false)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// peek returns a copy of the live value without counting. An expired entry
// is dropped.
func (m *Memory) peek(group, key string) (any, bool) {
	e, ok := m.lookup(group, key)
	if !ok {
		return nil, false
	}
	return store.Clone(e.value), true
}

// expiry returns the deadline of a live entry.
func (m *Memory) expiry(group, key string) (int64, bool) {
	e, ok := m.lookup(group, key)
	return e.expiresAt, ok
}

func (m *Memory) lookup(group, key string) (memEntry, bool) {
	m.mu.RLock()
	e, ok := m.groups[group][key]
	m.mu.RUnlock()
	if !ok {
		return memEntry{}, false
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, still := m.groups[group][key]; still && cur.expired(m.now()) {
			delete(m.groups[group], key)
		}
		m.mu.Unlock()
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) record(hit bool) {
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
}
