package health

import (
	"context"
	"fmt"
)

// HitCounter exposes cumulative lookup counters of a memory front.
type HitCounter interface {
	Hits() uint64
	Misses() uint64
}

// FrontCheckerConfig configures the front health checker.
type FrontCheckerConfig struct {
	// MinHitRatio below which the front is reported degraded.
	// Value should be between 0 and 1. Default: 0 (never degraded).
	MinHitRatio float64

	// MinLookups before the ratio is judged. Default: 100.
	MinLookups uint64
}

// FrontChecker reports the hit ratio of the memory front.
type FrontChecker struct {
	config  FrontCheckerConfig
	counter HitCounter
}

// NewFrontChecker creates a new front health checker.
func NewFrontChecker(counter HitCounter, config FrontCheckerConfig) *FrontChecker {
	if config.MinHitRatio < 0 || config.MinHitRatio > 1 {
		config.MinHitRatio = 0
	}
	if config.MinLookups == 0 {
		config.MinLookups = 100
	}
	return &FrontChecker{config: config, counter: counter}
}

// Name returns the name of this checker.
func (f *FrontChecker) Name() string {
	return "front"
}

// Check performs the front health check.
func (f *FrontChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	hits, misses := f.counter.Hits(), f.counter.Misses()
	lookups := hits + misses
	details := map[string]any{
		"hits":    hits,
		"misses":  misses,
		"lookups": lookups,
	}
	if lookups == 0 {
		return Healthy("no lookups yet").WithDetails(details)
	}

	ratio := float64(hits) / float64(lookups)
	details["hit_ratio"] = ratio

	if lookups >= f.config.MinLookups && ratio < f.config.MinHitRatio {
		return Degraded(fmt.Sprintf("hit ratio low: %.1f%%", ratio*100)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("hit ratio %.1f%%", ratio*100)).WithDetails(details)
}
