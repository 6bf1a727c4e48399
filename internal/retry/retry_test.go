package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusErr is a minimal HTTPStatusError for predicate tests.
type statusErr struct {
	status int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("http status %d", e.status) }
func (e *statusErr) HTTPStatus() int { return e.status }

func TestDo_SucceedsAfterTwoFailures(t *testing.T) {
	calls := 0
	op := func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}

	result, err := Do(context.Background(), op, Options{MaxAttempts: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_SingleAttemptPropagatesError(t *testing.T) {
	calls := 0
	wantErr := errors.New("boom")
	op := func() (int, error) {
		calls++
		return 0, wantErr
	}

	_, err := Do(context.Background(), op, Options{MaxAttempts: 1, Delay: time.Millisecond})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	op := func() (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d failed", calls)
	}

	_, err := Do(context.Background(), op, Options{MaxAttempts: 3, Delay: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, "attempt 3 failed", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDo_OnRetryObserver(t *testing.T) {
	var observed []int
	op := func() (int, error) {
		return 0, errors.New("always fails")
	}

	_, err := Do(context.Background(), op, Options{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		OnRetry: func(attempt int, err error) {
			observed = append(observed, attempt)
		},
	})
	require.Error(t, err)
	// Observer fires before each retry, not after the final failure.
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	}

	_, err := Do(ctx, op, Options{MaxAttempts: 5, Delay: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_DefaultsApplied(t *testing.T) {
	calls := 0
	op := func() (int, error) {
		calls++
		return 0, errors.New("fail")
	}

	_, err := Do(context.Background(), op, Options{Delay: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&statusErr{status: 429}))
	assert.True(t, IsRateLimited(&statusErr{status: 403}))
	assert.False(t, IsRateLimited(&statusErr{status: 500}))
	assert.False(t, IsRateLimited(errors.New("no status")))
	assert.False(t, IsRateLimited(nil))

	// Wrapped errors are unwrapped via errors.As.
	wrapped := fmt.Errorf("charge failed: %w", &statusErr{status: 429})
	assert.True(t, IsRateLimited(wrapped))
}
