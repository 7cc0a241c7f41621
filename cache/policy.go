package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PolicyConfig seeds a Policy.
type PolicyConfig struct {
	GlobalGroups        []string
	NonPersistentGroups []string
	NonPersistentKeys   []string
	KeyPrefix           string
	MaxTTL              time.Duration
}

// Policy decides which entries reach disk and how long they live.
//
// The group and key sets only grow. Changes apply to later writes; files
// already on disk are left alone.
type Policy struct {
	mu                  sync.RWMutex
	global              map[string]struct{}
	nonPersistentGroups map[string]struct{}
	nonPersistentKeys   map[string]struct{}
	keyPrefix           string
	maxTTL              time.Duration
}

// NewPolicy creates a Policy.
func NewPolicy(cfg PolicyConfig) *Policy {
	p := &Policy{
		global:              make(map[string]struct{}),
		nonPersistentGroups: make(map[string]struct{}),
		nonPersistentKeys:   make(map[string]struct{}),
		keyPrefix:           cfg.KeyPrefix,
		maxTTL:              cfg.MaxTTL,
	}
	if p.maxTTL < 0 {
		p.maxTTL = 0
	}
	p.AddGlobalGroups(cfg.GlobalGroups...)
	p.AddNonPersistentGroups(cfg.NonPersistentGroups...)
	p.AddNonPersistentKeys(cfg.NonPersistentKeys...)
	return p
}

func addAll(mu *sync.RWMutex, set map[string]struct{}, items []string) {
	mu.Lock()
	defer mu.Unlock()
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = struct{}{}
		}
	}
}

func has(mu *sync.RWMutex, set map[string]struct{}, item string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := set[item]
	return ok
}

func sorted(mu *sync.RWMutex, set map[string]struct{}) []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AddGlobalGroups adds groups shared by every tenant.
func (p *Policy) AddGlobalGroups(groups ...string) {
	addAll(&p.mu, p.global, groups)
}

// AddNonPersistentGroups adds groups that stay in memory.
func (p *Policy) AddNonPersistentGroups(groups ...string) {
	addAll(&p.mu, p.nonPersistentGroups, groups)
}

// AddNonPersistentKeys adds keys that stay in memory, in every group.
func (p *Policy) AddNonPersistentKeys(keys ...string) {
	addAll(&p.mu, p.nonPersistentKeys, keys)
}

// IsGlobal reports whether group is shared by every tenant.
func (p *Policy) IsGlobal(group string) bool {
	return has(&p.mu, p.global, group)
}

// Persistable reports whether (group, key) may be written to disk. The key
// prefix is stripped before the key is looked up.
func (p *Policy) Persistable(group, key string) bool {
	if has(&p.mu, p.nonPersistentGroups, group) {
		return false
	}
	return !has(&p.mu, p.nonPersistentKeys, strings.TrimPrefix(key, p.keyPrefix))
}

// Qualify puts the tenant prefix in front of key unless group is global.
func (p *Policy) Qualify(group, key string) string {
	if p.keyPrefix == "" || p.IsGlobal(group) || strings.HasPrefix(key, p.keyPrefix) {
		return key
	}
	return p.keyPrefix + key
}

// GlobalGroups returns the global groups, sorted.
func (p *Policy) GlobalGroups() []string { return sorted(&p.mu, p.global) }

// NonPersistentGroups returns the memory-only groups, sorted.
func (p *Policy) NonPersistentGroups() []string { return sorted(&p.mu, p.nonPersistentGroups) }

// NonPersistentKeys returns the memory-only keys, sorted.
func (p *Policy) NonPersistentKeys() []string { return sorted(&p.mu, p.nonPersistentKeys) }

// EffectiveTTL normalizes a requested TTL. Negative means 0. With a MaxTTL
// set, 0 becomes MaxTTL and anything longer is capped to it.
func (p *Policy) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		ttl = 0
	}
	if p.maxTTL > 0 && (ttl == 0 || ttl > p.maxTTL) {
		ttl = p.maxTTL
	}
	return ttl
}

// ExpiresAt converts a TTL into an absolute unix second, 0 for no expiry.
// Partial seconds round up.
func (p *Policy) ExpiresAt(now time.Time, ttl time.Duration) int64 {
	ttl = p.EffectiveTTL(ttl)
	if ttl == 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return now.Unix() + secs
}
