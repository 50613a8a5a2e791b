// internal/resilience/retry_test.go
package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(10), "backoff is capped")
	assert.Equal(t, 5*time.Second, p.Backoff(100))
}

func TestRetry(t *testing.T) {
	t.Run("k failures then success makes k+1 attempts", func(t *testing.T) {
		for k := 0; k < 4; k++ {
			t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
				calls := 0
				result, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) error {
					calls++
					assert.Equal(t, calls, attempt)
					if calls <= k {
						return errors.New("transient")
					}
					return nil
				})
				require.NoError(t, err)
				assert.Equal(t, k+1, result.Count())
				assert.Equal(t, k+1, calls)
				assert.False(t, result.Aborted)
			})
		}
	})

	t.Run("returns the last error after exhausting attempts", func(t *testing.T) {
		calls := 0
		result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
			calls++
			return fmt.Errorf("failure %d", attempt)
		})
		require.Error(t, err)
		assert.Equal(t, "failure 3", err.Error())
		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, result.Count())
	})

	t.Run("unrecoverable error aborts after one attempt", func(t *testing.T) {
		calls := 0
		result, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("RangeError: Maximum call stack size exceeded")
		})
		require.Error(t, err)
		assert.True(t, IsUnrecoverable(err))
		assert.Equal(t, 1, calls)
		assert.True(t, result.Aborted)
	})

	t.Run("attempt timeout counts as one failed attempt", func(t *testing.T) {
		policy := fastPolicy(2)
		policy.AttemptTimeout = 20 * time.Millisecond
		calls := 0
		result, err := Retry(context.Background(), policy, func(ctx context.Context, attempt int) error {
			calls++
			if attempt == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		require.Len(t, result.Attempts, 2)
		assert.True(t, IsTimedOut(result.Attempts[0].Err))
		assert.Equal(t, time.Millisecond, result.Attempts[1].Delay)
	})

	t.Run("zero max attempts still tries once", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), RetryPolicy{}, func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context stops the loop during backoff", func(t *testing.T) {
		policy := fastPolicy(5)
		policy.BaseDelay = time.Hour
		policy.MaxDelay = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := Retry(ctx, policy, func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errors.New("transient")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("RetryValue returns the successful value", func(t *testing.T) {
		v, result, err := RetryValue(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (string, error) {
			if attempt < 2 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 2, result.Count())
	})
}

func TestIsUnrecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection refused"), false},
		{"wrapped type", fmt.Errorf("eval: %w", Unrecoverable(errors.New("x"))), true},
		{"v8 signature", errors.New("RangeError: Maximum call stack size exceeded"), true},
		{"firefox signature", errors.New("InternalError: too much recursion"), true},
		{"go signature", errors.New("runtime: goroutine stack exceeds 1000000000-byte limit"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnrecoverable(tt.err))
		})
	}
}
