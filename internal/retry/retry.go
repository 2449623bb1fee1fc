// Package retry implements the exponential-backoff-with-jitter
// RetryStrategy consumed by httpclient.SyncClient, grounded on the
// teacher's backoff idioms in internal/circuitbreaker and
// internal/ratelimit (both compute a bounded, jittered delay from an
// attempt count rather than hand-rolling ad hoc sleeps per call site).
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the maximum retry count and the backoff duration
// for a given attempt.
type Strategy interface {
	GetMaximumAllowedRetryCount() uint64
	GetBackOffDurationInMilliseconds(retryCount uint64) time.Duration
}

// ExponentialWithJitter is an exponential backoff strategy:
// delay = min(maxDelay, initialDelay * 2^(retryCount-1)) ± jitterPercent,
// and zero for retryCount 0.
type ExponentialWithJitter struct {
	MaxRetries    uint64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	JitterPercent float64

	rng *rand.Rand
}

// New constructs an ExponentialWithJitter strategy.
func New(maxRetries uint64, initialDelay, maxDelay time.Duration, jitterPercent float64) *ExponentialWithJitter {
	return &ExponentialWithJitter{
		MaxRetries:    maxRetries,
		InitialDelay:  initialDelay,
		MaxDelay:      maxDelay,
		JitterPercent: jitterPercent,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetMaximumAllowedRetryCount returns the configured retry ceiling.
func (s *ExponentialWithJitter) GetMaximumAllowedRetryCount() uint64 {
	return s.MaxRetries
}

// GetBackOffDurationInMilliseconds computes the backoff for retryCount,
// retryCount == 0 always returning zero duration (the first attempt
// never waits).
func (s *ExponentialWithJitter) GetBackOffDurationInMilliseconds(retryCount uint64) time.Duration {
	if retryCount == 0 {
		return 0
	}

	exp := float64(retryCount - 1)
	delay := float64(s.InitialDelay) * math.Pow(2, exp)
	if max := float64(s.MaxDelay); s.MaxDelay > 0 && delay > max {
		delay = max
	}

	if s.JitterPercent > 0 {
		jitterRange := delay * s.JitterPercent
		delay += (s.rng.Float64()*2 - 1) * jitterRange
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}
