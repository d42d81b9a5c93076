// Package retry provides a pluggable retry mechanism for fetch attempts.
// It uses context-based injection so that callers further down the stack
// can pick up the retrier without it being threaded through every signature.
//
// By default, no retries are performed. Callers enable retries by injecting
// a retrier into the context.
//
// Example usage:
//
//	retrier := retry.NewFixedDelayRetrier().
//	    WithMaxAttempts(3).
//	    WithDelay(2 * time.Second)
//	ctx = retry.ToContext(ctx, retrier)
//	record, err := retry.Do(ctx, func(attempt int) (Record, error) { ... })
//
// Custom retriers can be implemented by implementing the Retrier interface.
package retry

import (
	"context"
	"errors"
	"time"
)

// Retrier defines the interface for retry behavior.
// Implementations determine when to retry and how long to wait between attempts.
type Retrier interface {
	// ShouldRetry determines if an error should be retried.
	// attempt is the current attempt number (1-indexed).
	ShouldRetry(ctx context.Context, err error, attempt int) bool

	// Wait waits before the next retry attempt.
	// attempt is the attempt number that just failed (1-indexed).
	// Returns an error if the context was cancelled during the wait.
	Wait(ctx context.Context, attempt int) error

	// MaxAttempts returns the maximum number of attempts (including the initial attempt).
	MaxAttempts() int
}

// Transient is implemented by errors that know whether they may succeed on a later attempt.
type Transient interface {
	Transient() bool
}

// IsTransient reports whether any error in err's chain declares itself transient.
func IsTransient(err error) bool {
	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

// DelayFunc returns the pause to take after the given failed attempt.
type DelayFunc func(attempt int) time.Duration

// Fixed returns a DelayFunc that always waits d.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration {
		return d
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// TimerSleep is the default SleepFunc. It waits on a timer and honours context cancellation.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoopRetrier is a retrier that never retries.
// This is the default retrier used when none is provided in the context.
type NoopRetrier struct{}

// ShouldRetry always returns false for NoopRetrier.
func (r *NoopRetrier) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	return false
}

// Wait is a no-op for NoopRetrier.
func (r *NoopRetrier) Wait(ctx context.Context, attempt int) error {
	return nil
}

// MaxAttempts returns 1 for NoopRetrier (no retries).
func (r *NoopRetrier) MaxAttempts() int {
	return 1
}

// FixedDelayRetrier retries transient errors with the same pause between every attempt.
// It does not retry errors that are not Transient, nor context cancellation.
type FixedDelayRetrier struct {
	// MaxAttemptsValue is the maximum number of attempts (including the initial attempt).
	// Default is 3.
	MaxAttemptsValue int

	// Delay computes the pause after a failed attempt.
	// Default is a fixed 2 seconds.
	Delay DelayFunc

	// Sleep performs the pause. Default is TimerSleep.
	Sleep SleepFunc
}

// NewFixedDelayRetrier creates a new FixedDelayRetrier with default values.
func NewFixedDelayRetrier() *FixedDelayRetrier {
	return &FixedDelayRetrier{
		MaxAttemptsValue: 3,
		Delay:            Fixed(2 * time.Second),
		Sleep:            TimerSleep,
	}
}

// ShouldRetry returns true when attempts remain and err is transient.
func (r *FixedDelayRetrier) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil {
		return false
	}

	if attempt >= r.MaxAttempts() {
		return false
	}

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return false
	}

	return IsTransient(err)
}

// Wait pauses for Delay(attempt) using Sleep.
func (r *FixedDelayRetrier) Wait(ctx context.Context, attempt int) error {
	delay := r.Delay
	if delay == nil {
		delay = Fixed(0)
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = TimerSleep
	}

	return sleep(ctx, delay(attempt))
}

// MaxAttempts returns the maximum number of attempts.
func (r *FixedDelayRetrier) MaxAttempts() int {
	if r.MaxAttemptsValue <= 0 {
		return 3
	}
	return r.MaxAttemptsValue
}

// WithMaxAttempts sets the maximum number of attempts.
func (r *FixedDelayRetrier) WithMaxAttempts(attempts int) *FixedDelayRetrier {
	r.MaxAttemptsValue = attempts
	return r
}

// WithDelay sets a fixed pause between attempts.
func (r *FixedDelayRetrier) WithDelay(delay time.Duration) *FixedDelayRetrier {
	r.Delay = Fixed(delay)
	return r
}

// WithDelayFunc sets the function computing the pause between attempts.
func (r *FixedDelayRetrier) WithDelayFunc(fn DelayFunc) *FixedDelayRetrier {
	r.Delay = fn
	return r
}

// WithSleep replaces the function that performs the pause.
// Tests use it to observe waits without depending on the wall clock.
func (r *FixedDelayRetrier) WithSleep(fn SleepFunc) *FixedDelayRetrier {
	r.Sleep = fn
	return r
}

// Do runs fn until it succeeds, returns an error the retrier refuses to retry,
// or the retrier's attempt budget is spent. The last error is returned unchanged.
// A failed Wait (for example a cancelled context) ends the loop with the wait error.
func Do[T any](ctx context.Context, fn func(attempt int) (T, error)) (T, error) {
	retrier := FromContextOrNoop(ctx)
	maxAttempts := retrier.MaxAttempts()

	for attempt := 1; ; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			return result, err
		}

		if !retrier.ShouldRetry(ctx, err, attempt) {
			return result, err
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			var zero T
			return zero, waitErr
		}
	}
}
