package cache

import "errors"

var (
	// ErrInvalidKey indicates an empty or blank key.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrKeyTooLong indicates a key longer than MaxKeyLength.
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrMemoryOnly indicates the store root is unusable and values live in memory only.
	ErrMemoryOnly = errors.New("cache: running memory-only")

	// ErrCollision indicates a record file holds a different group and key.
	ErrCollision = errors.New("cache: record belongs to another key")
)
