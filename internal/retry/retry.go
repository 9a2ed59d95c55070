// Package retry runs operations under a bounded exponential backoff that only repeats
// errors a predicate accepts.
package retry

import (
	"context"
	"math"
	"time"

	"insights-backend/internal/failure"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	// MaxAttempts counts the first attempt, 1 disables retrying.
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	// Jitter is the randomization factor in [0, 1) applied to each delay.
	Jitter float64
	// Retryable decides whether an error is worth another attempt, it defaults to
	// failure.IsTransient.
	Retryable func(err error) bool
	// OnRetry is called before sleeping, attempt is the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default is 3 attempts, 1s base delay, factor 2.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Duration(math.MaxInt64)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = failure.IsTransient
	}
	return p
}

// Schedule returns the nominal delays between attempts, before jitter.
func (p Policy) Schedule() []time.Duration {
	p = p.normalized()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	current := float64(p.BaseDelay)
	for i := 0; i < p.MaxAttempts-1; i++ {
		delay := time.Duration(current)
		if current >= float64(p.MaxDelay) {
			delay = p.MaxDelay
		}
		delays = append(delays, delay)
		current *= p.Factor
	}
	return delays
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.Jitter,
		Multiplier:          p.Factor,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)),
		ctx,
	)
}

// DoValue runs op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error of op is returned unchanged.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	attempt := 0
	operation := func() (T, error) {
		attempt++
		value, err := op(ctx)
		if err != nil && !p.Retryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
	}

	return backoff.RetryNotifyWithData(operation, p.backoff(ctx), notify)
}

func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
