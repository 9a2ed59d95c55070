package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"insights-backend/internal/failure"

	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Factor:      2,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	retries := []int{}
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}

	value, err := DoValue(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", failure.New(failure.KindTransientNetwork, "fetch", "status 429")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retries)
}

func TestStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return failure.New(failure.KindTransientNetwork, "fetch", "status 503")
	})
	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, failure.ErrTransientNetwork)
}

func TestDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return failure.New(failure.KindInvalidCredentials, "login", "rejected")
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, failure.ErrInvalidCredentials)

	var ferr *failure.Error
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, "login", ferr.Op)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(10)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	calls := 0
	done := make(chan error)
	go func() {
		done <- Do(ctx, p, func(ctx context.Context) error {
			calls++
			return failure.New(failure.KindTransientNetwork, "fetch", "timeout")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	require.Equal(t, 1, calls)
}

func TestSchedule(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, Factor: 2, MaxDelay: 5 * time.Second}
	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
	}, p.Schedule())

	require.Empty(t, Policy{MaxAttempts: 1}.Schedule())
}
