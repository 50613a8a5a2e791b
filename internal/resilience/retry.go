// File: internal/resilience/retry.go
package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy configures the bounded retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number to get the wait before the next attempt.
	BaseDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// AttemptTimeout bounds each single attempt. Zero disables the per-attempt race.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the stock policy: two attempts, 500ms linear backoff capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Backoff returns the wait after the given (1-based) failed attempt: min(base*attempt, cap).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Attempt is the record of one try inside a retry loop. It is never persisted.
type Attempt struct {
	Index int
	// Delay is how long the loop waited before making this attempt.
	Delay time.Duration
	Err   error
}

// RetryResult summarizes a retry loop invocation.
type RetryResult struct {
	Attempts []Attempt
	// Aborted is true when an unrecoverable error stopped the loop early.
	Aborted bool
}

// Count returns the number of attempts made.
func (r RetryResult) Count() int { return len(r.Attempts) }

// LastError returns the error of the final attempt, or nil.
func (r RetryResult) LastError() error {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1].Err
}

// Retry runs op up to policy.MaxAttempts times. It is a plain loop: a failing
// operation never deepens the call stack.
//
// Unrecoverable errors abort immediately. Other errors wait policy.Backoff
// before the next attempt. When every attempt fails the last error is
// returned unchanged. A done ctx ends the loop during backoff.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context, attempt int) error) (RetryResult, error) {
	_, result, err := RetryValue(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return result, err
}

// RetryValue is Retry for operations that produce a value. Each attempt's
// value only crosses goroutines through the timeout race channel.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, RetryResult, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		result RetryResult
		delay  time.Duration
		zero   T
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := WithTimeout(ctx, policy.AttemptTimeout, func(ctx context.Context) (T, error) {
			return op(ctx, attempt)
		})
		result.Attempts = append(result.Attempts, Attempt{Index: attempt, Delay: delay, Err: err})
		if err == nil {
			return v, result, nil
		}

		if IsUnrecoverable(err) {
			result.Aborted = true
			return zero, result, err
		}

		if attempt == maxAttempts {
			break
		}

		delay = policy.Backoff(attempt)
		if err := sleep(ctx, delay); err != nil {
			return zero, result, errors.Join(result.LastError(), err)
		}
	}

	return zero, result, result.LastError()
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
