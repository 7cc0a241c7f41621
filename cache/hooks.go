package cache

import (
	"context"
	"strconv"
	"sync"
)

// Target names one entry to invalidate.
type Target struct {
	Key   string
	Group string
}

// Invalidator maps a host lifecycle event to the entries it makes stale.
type Invalidator interface {
	Invalidate(event string, payload any) []Target
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(event string, payload any) []Target

// Invalidate calls f.
func (f InvalidatorFunc) Invalidate(event string, payload any) []Target {
	return f(event, payload)
}

// Deleter removes one entry. *Cache implements it.
type Deleter interface {
	Delete(ctx context.Context, key, group string) bool
}

// Hooks routes host events to invalidators and deletes what they return.
// The cache never fires events itself; the host calls Notify.
type Hooks struct {
	target Deleter

	mu    sync.RWMutex
	byEvt map[string][]Invalidator
}

// NewHooks creates an empty dispatcher deleting from target.
func NewHooks(target Deleter) *Hooks {
	return &Hooks{target: target, byEvt: make(map[string][]Invalidator)}
}

// On registers inv for each event.
func (h *Hooks) On(inv Invalidator, events ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range events {
		h.byEvt[e] = append(h.byEvt[e], inv)
	}
}

// Notify runs every invalidator registered for event and deletes the
// distinct targets they return. It returns how many deletes removed a value.
func (h *Hooks) Notify(ctx context.Context, event string, payload any) int {
	h.mu.RLock()
	invs := append([]Invalidator(nil), h.byEvt[event]...)
	h.mu.RUnlock()

	seen := make(map[Target]struct{})
	removed := 0
	for _, inv := range invs {
		for _, t := range inv.Invalidate(event, payload) {
			t.Group = normGroup(t.Group)
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if h.target.Delete(ctx, t.Key, t.Group) {
				removed++
			}
		}
	}
	return removed
}

// Option lifecycle events.
const (
	EventOptionAdded   = "added_option"
	EventOptionUpdated = "updated_option"
	EventOptionDeleted = "deleted_option"
)

// Plugin lifecycle events.
const (
	EventPluginActivated   = "activate_plugin"
	EventPluginDeactivated = "deactivate_plugin"
)

// OptionChange is the payload of the option events.
type OptionChange struct {
	Name string
	// Autoload is true when the option is part of the preloaded set.
	Autoload bool
}

// PluginChange is the payload of the plugin events.
type PluginChange struct {
	Plugin string
	// SiteID is the network id in a multi-site host; 0 otherwise.
	SiteID int64
}

// OptionsInvalidator drops the preloaded option bundle when an autoloaded
// option changes.
func OptionsInvalidator() Invalidator {
	return InvalidatorFunc(func(_ string, payload any) []Target {
		if ch, ok := payload.(OptionChange); ok && ch.Autoload {
			return []Target{{Key: "alloptions", Group: "options"}}
		}
		return nil
	})
}

// PluginsInvalidator drops the plugin bookkeeping entries when a plugin is
// switched on or off.
func PluginsInvalidator() Invalidator {
	return InvalidatorFunc(func(_ string, payload any) []Target {
		targets := []Target{{Key: "uninstall_plugins", Group: "options"}}
		if ch, ok := payload.(PluginChange); ok && ch.SiteID != 0 {
			key := strconv.FormatInt(ch.SiteID, 10) + ":active_sitewide_plugins"
			targets = append(targets, Target{Key: key, Group: "site-options"})
		}
		return targets
	})
}

// RegisterDefaults wires the stock invalidators.
func (h *Hooks) RegisterDefaults() {
	h.On(OptionsInvalidator(), EventOptionAdded, EventOptionUpdated, EventOptionDeleted)
	h.On(PluginsInvalidator(), EventPluginActivated, EventPluginDeactivated)
}
