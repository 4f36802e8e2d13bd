package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures transport retries of model calls. The agent engine
// itself never retries; a failure that survives the policy ends the run.
type RetryPolicy struct {
	MaxRetries        int     // attempts after the initial call
	BaseDelay         float64 // seconds
	MaxDelay          float64 // seconds
	BackoffMultiplier float64
	Jitter            bool
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries with exponential backoff from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Delay is the backoff before retry n (0-indexed), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// [0.5, 1.5)
		delay *= 0.5 + rand.Float64()
	}
	return seconds(delay)
}

// next returns the wait before retry n for err, or false when err should be
// returned as is. A provider's Retry-After replaces the backoff unless it
// exceeds MaxDelay.
func (p RetryPolicy) next(err error, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxRetries || !IsRetryable(err) {
		return 0, false
	}
	if after := retryAfter(err); after != nil {
		wait := seconds(*after)
		if wait > seconds(p.MaxDelay) {
			return 0, false
		}
		return wait, true
	}
	return p.Delay(attempt), true
}

// retryAfter digs the Retry-After hint out of any provider error in err.
func retryAfter(err error) *float64 {
	var (
		rl  *RateLimitError
		srv *ServerError
		pe  *ProviderError
	)
	switch {
	case errors.As(err, &rl):
		return rl.RetryAfter
	case errors.As(err, &srv):
		return srv.RetryAfter
	case errors.As(err, &pe):
		return pe.RetryAfter
	}
	return nil
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. Cancellation while waiting yields an AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		wait, ok := policy.next(err, attempt)
		if !ok {
			var zero T
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			var zero T
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
	case <-timer.C:
		return nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
