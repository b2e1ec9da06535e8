package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry_Kinds(t *testing.T) {
	p := DefaultRetryPolicy()

	retryable := []Kind{KindNetworkUnreachable, KindServerFault}
	for _, k := range retryable {
		assert.True(t, p.ShouldRetry(k, 0), k.String())
	}

	never := []Kind{KindUnauthenticated, KindForbidden, KindValidationFailed, KindNotFound, KindUnclassified}
	for _, k := range never {
		assert.False(t, p.ShouldRetry(k, 0), k.String())
	}
}

func TestShouldRetry_Bound(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.True(t, p.ShouldRetry(KindServerFault, 0))
	assert.True(t, p.ShouldRetry(KindServerFault, 2))
	assert.False(t, p.ShouldRetry(KindServerFault, 3))
	assert.False(t, p.ShouldRetry(KindServerFault, 10))

	none := RetryPolicy{MaxRetries: 0, BaseDelay: time.Second}
	assert.False(t, none.ShouldRetry(KindNetworkUnreachable, 0))
}

func TestDelayFor_Exponential(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 1*time.Second, p.DelayFor(0))
	assert.Equal(t, 2*time.Second, p.DelayFor(1))
	assert.Equal(t, 4*time.Second, p.DelayFor(2))
	assert.Equal(t, 8*time.Second, p.DelayFor(3))
}

func TestDelayFor_Monotonic(t *testing.T) {
	p := DefaultRetryPolicy()

	for n := range 20 {
		assert.Greater(t, p.DelayFor(n+1), p.DelayFor(n), "attempt %d", n)
	}
}

func TestDelayFor_Cap(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	assert.Equal(t, 2*time.Second, p.DelayFor(1))
	assert.Equal(t, 3*time.Second, p.DelayFor(2))
	assert.Equal(t, 3*time.Second, p.DelayFor(6))
}

func TestDelayFor_JitterBounds(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Jitter: 0.25}

	for range 100 {
		d := p.DelayFor(2)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}
