package resilience

import "errors"

// ErrMaxRetriesExceeded is joined with the last error once every attempt failed
// for a retryable reason.
var ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")
