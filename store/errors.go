package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no record exists at the path.
	ErrNotFound = errors.New("store: entry not found")

	// ErrExpired indicates the record existed but its expiry had passed.
	// The file has been removed by the time this is returned.
	ErrExpired = errors.New("store: entry expired")

	// ErrMalformed indicates the file is not a record this package wrote.
	ErrMalformed = errors.New("store: malformed record")

	// ErrUnsupportedValue indicates a value shape the codec cannot represent.
	ErrUnsupportedValue = errors.New("store: unsupported value")

	// ErrOutsideRoot indicates a path that does not belong to the store root.
	ErrOutsideRoot = errors.New("store: path outside store root")

	// ErrEmptyRoot indicates a FileStore configured without a root directory.
	ErrEmptyRoot = errors.New("store: root directory cannot be empty")
)
