package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Persistable(t *testing.T) {
	p := NewPolicy(PolicyConfig{
		NonPersistentGroups: []string{"counts", " "},
		NonPersistentKeys:   []string{"session"},
		KeyPrefix:           "wp_",
	})

	assert.False(t, p.Persistable("counts", "anything"))
	assert.False(t, p.Persistable("users", "session"))
	assert.False(t, p.Persistable("users", "wp_session"))
	assert.True(t, p.Persistable("users", "wp_profile"))
	assert.Equal(t, []string{"counts"}, p.NonPersistentGroups())

	p.AddNonPersistentKeys("profile")
	assert.False(t, p.Persistable("users", "wp_profile"))
	assert.Equal(t, []string{"profile", "session"}, p.NonPersistentKeys())
}

func TestPolicy_Qualify(t *testing.T) {
	p := NewPolicy(PolicyConfig{GlobalGroups: []string{"users"}, KeyPrefix: "site3_"})

	assert.Equal(t, "site3_options", p.Qualify("options", "options"))
	assert.Equal(t, "site3_options", p.Qualify("options", "site3_options"))
	assert.Equal(t, "42", p.Qualify("users", "42"))
	assert.True(t, p.IsGlobal("users"))

	plain := NewPolicy(PolicyConfig{})
	assert.Equal(t, "k", plain.Qualify("g", "k"))
}

func TestPolicy_EffectiveTTL(t *testing.T) {
	tests := []struct {
		name   string
		maxTTL time.Duration
		in     time.Duration
		want   time.Duration
	}{
		{"no cap zero", 0, 0, 0},
		{"no cap negative", 0, -time.Second, 0},
		{"no cap long", 0, time.Hour, time.Hour},
		{"cap zero", time.Minute, 0, time.Minute},
		{"cap negative", time.Minute, -time.Second, time.Minute},
		{"cap below", time.Minute, time.Second, time.Second},
		{"cap above", time.Minute, time.Hour, time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPolicy(PolicyConfig{MaxTTL: tc.maxTTL})
			assert.Equal(t, tc.want, p.EffectiveTTL(tc.in))
		})
	}
}

func TestPolicy_ExpiresAtRoundsUp(t *testing.T) {
	p := NewPolicy(PolicyConfig{})
	now := time.Unix(1000, 0)

	assert.Equal(t, int64(0), p.ExpiresAt(now, 0))
	assert.Equal(t, int64(1001), p.ExpiresAt(now, time.Second))
	assert.Equal(t, int64(1001), p.ExpiresAt(now, time.Millisecond))
	assert.Equal(t, int64(1002), p.ExpiresAt(now, 1500*time.Millisecond))
}
