package catalog

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryPolicy controls executeWithRetry.
type retryPolicy struct {
	maxAttempts int // total calls including the first
	baseDelay   time.Duration
	maxDelay    time.Duration

	// seams for tests; production uses rand jitter and time.After
	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: 4,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
		jitter:      uniformJitter,
		sleep:       sleepCtx,
	}
}

// backoffDelay computes the wait before retrying after the given 1-indexed
// attempt: min(maxDelay, baseDelay × 2^(attempt−1)), scaled by a jitter
// factor drawn uniformly from [0.7, 1.3].
func (p retryPolicy) backoffDelay(attempt int) time.Duration {
	d := p.baseDelay << (attempt - 1)
	if d > p.maxDelay || d <= 0 {
		d = p.maxDelay
	}
	return time.Duration(float64(d) * p.jitter())
}

// executeWithRetry runs fn until it succeeds or the policy gives up.
// Transient and rate-limited failures retry with exponential backoff;
// quota-exceeded retries at most once; everything else propagates
// immediately.
func executeWithRetry[T any](ctx context.Context, p retryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	quotaRetried := false

	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		switch classify(err) {
		case classTransient, classRateLimited:
			if attempt >= p.maxAttempts {
				return zero, err
			}
		case classQuotaExceeded:
			if quotaRetried {
				return zero, err
			}
			quotaRetried = true
		default:
			return zero, err
		}

		if sleepErr := p.sleep(ctx, p.backoffDelay(attempt)); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

func uniformJitter() float64 {
	return 0.7 + rand.Float64()*0.6
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
