package transport

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Retry defaults.
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 1 * time.Second
	backoffFactor      = 2.0
)

// RetryPolicy decides whether a failed call is attempted again and how long
// to wait first. Only NetworkUnreachable and ServerFault are retryable.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration // 0 = uncapped
	Jitter     float64       // fraction of the delay, 0 = none
}

// DefaultRetryPolicy returns 3 retries with a 1s base and no jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseBackoff,
	}
}

// ShouldRetry reports whether a call that has already been retried attempt
// times and just failed with kind gets another attempt.
func (p RetryPolicy) ShouldRetry(kind Kind, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}

	return kind == KindNetworkUnreachable || kind == KindServerFault
}

// DelayFor returns BaseDelay * 2^attempt, capped at MaxDelay and spread by
// ±Jitter.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(backoffFactor, float64(attempt))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitter := backoff * p.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
		backoff += jitter
	}

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
