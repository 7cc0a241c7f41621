package resilience

import (
	"context"
	"errors"
	"io/fs"
	"math/rand/v2"
	"syscall"
	"time"
)

// BackoffStrategy defines how delays grow between attempts.
type BackoffStrategy int

const (
	// BackoffExponential doubles the delay on every attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay by InitialDelay per attempt.
	BackoffLinear
	// BackoffConstant waits InitialDelay between every attempt.
	BackoffConstant
)

// RetryConfig configures a Retry.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 5ms
	InitialDelay time.Duration

	// MaxDelay caps any single delay.
	// Default: 100ms
	MaxDelay time.Duration

	// Strategy selects how delays grow.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter adds up to 25% random delay so that processes racing on the
	// same store directory do not retry in lockstep.
	Jitter bool

	// RetryIf reports whether err is worth another attempt.
	// Default: IsTransient.
	RetryIf func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs short filesystem operations that fail for transient reasons.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry, filling unset fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 5 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 100 * time.Millisecond
	}
	if config.RetryIf == nil {
		config.RetryIf = IsTransient
	}
	return &Retry{config: config}
}

// Once returns a Retry that makes a single attempt.
func Once() *Retry {
	return NewRetry(RetryConfig{MaxAttempts: 1})
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error from op is returned.
func (r *Retry) Do(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	if r.config.MaxAttempts > 1 && r.config.RetryIf(lastErr) {
		return errors.Join(ErrMaxRetriesExceeded, lastErr)
	}
	return lastErr
}

func (r *Retry) delay(attempt int) time.Duration {
	var d time.Duration
	switch r.config.Strategy {
	case BackoffConstant:
		d = r.config.InitialDelay
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	default:
		d = r.config.InitialDelay << (attempt - 1)
	}

	if d > r.config.MaxDelay || d <= 0 {
		d = r.config.MaxDelay
	}

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// IsTransient reports whether a filesystem error may succeed if retried.
// Missing files and permission problems are permanent; busy or interrupted
// operations are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ETXTBSY)
}
