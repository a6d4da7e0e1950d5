package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetryConfig keeps retry tests quick.
var fastRetryConfig = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

var errBusy = &LLMError{Err: errors.New("busy"), StatusCode: 503}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		ceiling time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			d := CalculateBackoff(tt.attempt, time.Second, 5*time.Second)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, tt.ceiling, "attempt %d", tt.attempt)
		}
	}
	assert.Zero(t, CalculateBackoff(3, 0, time.Second))
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), -time.Second))

	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.DeadlineExceeded)
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"first call succeeds", []error{nil}, 1, nil},
		{"transient then success", []error{errBusy, errBusy, nil}, 3, nil},
		{"permanent error stops", []error{&LLMError{Err: errors.New("bad"), StatusCode: 400}}, 1, errors.New("bad")},
		{"quota error is not retried", []error{errors.New("quota exceeded")}, 1, errors.New("quota exceeded")},
		{"attempts exhausted", []error{errBusy, errBusy, errBusy, nil}, 3, errBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := WithRetry(context.Background(), fastRetryConfig, func() error {
				e := tt.errs[calls]
				calls++
				return e
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr.Error())
		})
	}
}

func TestWithRetry_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithRetry(ctx, fastRetryConfig, func() error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestWithRetryNotify(t *testing.T) {
	t.Parallel()

	var attempts []int
	calls := 0
	err := WithRetryNotify(context.Background(), fastRetryConfig, func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.ErrorIs(t, err, errBusy)
	}, func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestWithRetryNotify_NilCallback(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetryNotify(context.Background(), fastRetryConfig, nil, func() error {
		calls++
		if calls == 1 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_StopsWhenDeadlineCannotCoverBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}

	// The server asks for a full second, which always exceeds the budget.
	slow := &LLMError{Err: errors.New("slow down"), StatusCode: 429, RetryAfter: time.Second}
	calls := 0
	err := WithRetry(ctx, cfg, func() error { calls++; return slow })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout during retry")
	assert.Equal(t, 1, calls)
}

func TestWithRetry_HonorsRetryAfter(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Microsecond, MaxDelay: 50 * time.Millisecond}
	wait := &LLMError{Err: errors.New("slow down"), StatusCode: 429, RetryAfter: 20 * time.Millisecond}

	calls := 0
	start := time.Now()
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return wait
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBudget(t *testing.T) {
	t.Parallel()

	assert.Zero(t, RemainingBudget(context.Background()))
	assert.True(t, HasSufficientBudget(context.Background(), time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	remaining := RemainingBudget(ctx)
	assert.Greater(t, remaining, 500*time.Millisecond)
	assert.LessOrEqual(t, remaining, time.Second)
	assert.True(t, HasSufficientBudget(ctx, 100*time.Millisecond))
	assert.False(t, HasSufficientBudget(ctx, time.Minute))

	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	assert.LessOrEqual(t, RemainingBudget(expired), time.Duration(0))
}
