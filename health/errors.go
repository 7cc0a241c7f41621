package health

import "errors"

var (
	// ErrCheckTimeout is reported for a check that outlived the aggregate timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanicked is reported for a check that panicked.
	ErrCheckPanicked = errors.New("health: check panicked")

	// ErrRootMissing indicates the store root does not exist or is not a directory.
	ErrRootMissing = errors.New("health: store root missing")
)
