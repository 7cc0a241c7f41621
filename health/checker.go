package health

import (
	"context"
	"maps"
	"time"
)

// Status is the health of one component. Higher values are worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Worse returns the more severe of s and o.
func (s Status) Worse(o Status) Status {
	if o > s {
		return o
	}
	return s
}

// Result is the outcome of one check.
type Result struct {
	Status  Status
	Message string
	Error   error

	// Details are rendered as-is in reports.
	Details map[string]any

	// Duration and Timestamp are filled in by the Aggregator when unset.
	Duration  time.Duration
	Timestamp time.Time
}

func newResult(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy reports a working component.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded reports a component that works with reduced guarantees, such as
// a cache that has fallen back to memory.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy reports a component that does not work.
func Unhealthy(message string, err error) Result {
	return newResult(StatusUnhealthy, message, err)
}

// WithDetails returns r with details merged into its existing details.
func (r Result) WithDetails(details map[string]any) Result {
	merged := make(map[string]any, len(r.Details)+len(details))
	maps.Copy(merged, r.Details)
	maps.Copy(merged, details)
	r.Details = merged
	return r
}

// Checker probes one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckFunc is a check without a name; see Named.
type CheckFunc func(ctx context.Context) Result

// Named turns fn into a Checker called name.
func Named(name string, fn CheckFunc) Checker {
	return namedCheck{name: name, fn: fn}
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

func (c namedCheck) Name() string                     { return c.name }
func (c namedCheck) Check(ctx context.Context) Result { return c.fn(ctx) }
