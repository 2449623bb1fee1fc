package retry

import (
	"testing"
	"time"
)

func TestFirstAttemptHasNoDelay(t *testing.T) {
	s := New(5, 100*time.Millisecond, 5*time.Second, 0.2)
	if d := s.GetBackOffDurationInMilliseconds(0); d != 0 {
		t.Fatalf("expected zero delay for retryCount 0, got %v", d)
	}
}

func TestBackoffGrowsAndCapsAtMaxDelay(t *testing.T) {
	s := New(10, 100*time.Millisecond, 1*time.Second, 0)

	prev := time.Duration(0)
	for i := uint64(1); i <= 3; i++ {
		d := s.GetBackOffDurationInMilliseconds(i)
		if d <= prev {
			t.Fatalf("expected increasing backoff, retry %d got %v <= previous %v", i, d, prev)
		}
		prev = d
	}

	capped := s.GetBackOffDurationInMilliseconds(20)
	if capped > 1*time.Second {
		t.Fatalf("expected backoff capped at MaxDelay, got %v", capped)
	}
}

func TestMaximumAllowedRetryCount(t *testing.T) {
	s := New(7, 10*time.Millisecond, time.Second, 0.1)
	if s.GetMaximumAllowedRetryCount() != 7 {
		t.Fatalf("expected 7, got %d", s.GetMaximumAllowedRetryCount())
	}
}
