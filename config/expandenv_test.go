package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestExpandWith(t *testing.T) {
	vars := mapLookup(map[string]string{
		"XDG_CACHE_HOME": "/home/ada/.cache",
		"SITE":           "blog",
		"EMPTY":          "",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path", "/var/cache/docket", "/var/cache/docket"},
		{"cache root", "${XDG_CACHE_HOME}/docket/${SITE}", "/home/ada/.cache/docket/blog"},
		{"set but empty", "/srv${EMPTY}/docket", "/srv/docket"},
		{"escaped dollar", "/srv/$$cache/docket", "/srv/$cache/docket"},
		{"escaped reference", "$${SITE}/docket", "${SITE}/docket"},
		{"escape then reference", "/srv/$$${SITE}", "/srv/$blog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandWith(tt.in, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandWith_MissingVars(t *testing.T) {
	_, err := expandWith("${ZETA}/${ALPHA}/${ZETA}", mapLookup(nil))
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "ALPHA, ZETA")
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("DOCKET_TEST_ROOT", "/tmp/docket")

	got, err := ExpandEnvStrict("${DOCKET_TEST_ROOT}/objects")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/docket/objects", got)

	_, err = ExpandEnvStrict("${DOCKET_TEST_UNSET_VAR}/objects")
	assert.ErrorIs(t, err, ErrMissingEnv)
}
