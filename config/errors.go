package config

import "errors"

var (
	// ErrInvalidConfig is returned by Validate for an unusable configuration.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingEnv is returned when a ${VAR} reference names an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")
)
