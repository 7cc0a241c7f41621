// Package resilience provides the retry policy used around filesystem
// operations that several processes may contend on.
//
// The store directory is shared by independent processes, so a rename or
// unlink can transiently fail with EBUSY or EINTR. Retry re-runs such an
// operation a few times with a short backoff:
//
//	r := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  4,
//	    InitialDelay: 2 * time.Millisecond,
//	    Jitter:       true,
//	})
//	err := r.Do(ctx, func() error {
//	    return os.Rename(tmp, path)
//	})
//
// Permanent errors (missing files, permission denied) are returned after the
// first attempt.
package resilience
