package health

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a full round of checks.
const DefaultTimeout = 10 * time.Second

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout bounds CheckAll. Default: DefaultTimeout.
	Timeout time.Duration
}

// Aggregator runs a set of checkers together and folds their status.
// Checkers are keyed by Name; registering a second checker with the same
// name replaces the first and keeps its position.
type Aggregator struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	a := &Aggregator{timeout: DefaultTimeout}
	if len(config) > 0 && config[0].Timeout > 0 {
		a.timeout = config[0].Timeout
	}
	return a
}

// Register adds checkers.
func (a *Aggregator) Register(checkers ...Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range checkers {
		i := slices.IndexFunc(a.checkers, func(have Checker) bool { return have.Name() == c.Name() })
		if i >= 0 {
			a.checkers[i] = c
			continue
		}
		a.checkers = append(a.checkers, c)
	}
}

// CheckerNames returns checker names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// CheckAll runs every checker concurrently and returns results by name.
// A checker still running at the timeout is reported unhealthy.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]Result, len(checkers))
	)
	for _, c := range checkers {
		g.Go(func() error {
			r := run(ctx, c)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Overall folds results into the worst status; no results is healthy.
func Overall(results map[string]Result) Status {
	s := StatusHealthy
	for _, r := range results {
		s = s.Worse(r.Status)
	}
	return s
}

func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Unhealthy("check panicked", fmt.Errorf("%w: %v", ErrCheckPanicked, p))
			}
		}()
		done <- c.Check(ctx)
	}()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ErrCheckTimeout)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = start
	}
	if r.Duration == 0 {
		r.Duration = time.Since(start)
	}
	return r
}

// Report runs every check and renders the outcome for humans and probes.
func (a *Aggregator) Report(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	report := Report{
		Status:    Overall(results).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]CheckReport, len(results)),
	}
	for name, result := range results {
		report.Checks[name] = newCheckReport(result)
	}
	return report
}

// Report is the JSON form of an aggregate check.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckReport `json:"checks,omitempty"`
}

// CheckReport is the JSON form of a single check.
type CheckReport struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newCheckReport(r Result) CheckReport {
	c := CheckReport{
		Status:   r.Status.String(),
		Message:  r.Message,
		Duration: r.Duration.String(),
		Details:  r.Details,
	}
	if r.Error != nil {
		c.Error = r.Error.Error()
	}
	return c
}
