// Package retry provides a fixed-delay retry combinator and a rate-limit
// predicate for calls to external APIs (payment providers, GitHub).
//
// Retries are fixed-delay rather than exponential: the engine runs at human
// timescale (one event per invocation), so a short constant pause is enough
// and keeps behavior predictable in tests.
package retry

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxAttempts is the number of attempts used when Options.MaxAttempts
// is zero. One retry after the initial attempt.
const DefaultMaxAttempts = 2

// DefaultDelay is the pause between attempts when Options.Delay is zero.
const DefaultDelay = 1 * time.Second

// Options configures a Do call.
type Options struct {
	// MaxAttempts is the total number of invocations (initial + retries).
	// Zero means DefaultMaxAttempts.
	MaxAttempts int

	// Delay is the fixed wait between attempts. Zero means DefaultDelay.
	Delay time.Duration

	// OnRetry is invoked before each retry with the attempt number that
	// failed (1-based) and its error. Used for logging and telemetry.
	// May be nil.
	OnRetry func(attempt int, err error)
}

// Do invokes op up to MaxAttempts times, waiting Delay between attempts.
// It returns the first successful result. When all attempts fail, the last
// error is returned. The context is checked during the inter-attempt wait;
// cancellation returns ctx.Err() without further attempts.
func Do[T any](ctx context.Context, op func() (T, error), opts Options) (T, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// HTTPStatusError is implemented by errors that carry an HTTP status code
// from an upstream API response.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// IsRateLimited reports whether err carries an HTTP status of 403 or 429.
// Callers use this to decide that a failure is worth a later re-run rather
// than an immediate retry.
func IsRateLimited(err error) bool {
	var se HTTPStatusError
	if errors.As(err, &se) {
		status := se.HTTPStatus()
		return status == 403 || status == 429
	}
	return false
}
