package httpclient

import (
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/clock"
	"github.com/privacysandbox/pbs-client-go/internal/retry"
)

// SyncClient drives AsyncClient's fire-and-callback PerformRequest
// through a blocking retry loop, applying strategy's backoff against a
// single overall deadline. It distinguishes two ways an operation can
// run out of time — the deadline has already passed before an attempt
// is even issued, versus there technically is time left but not enough
// to cover the next backoff — because callers reconcile the two
// differently (the first means "the whole thing is stale", the second
// means "one more attempt might still have fit").
type SyncClient struct {
	async             *AsyncClient
	strategy          retry.Strategy
	defaultExpiration time.Duration
	clk               clock.Clock
}

// NewSyncClient constructs a SyncClient backed by the real wall clock.
// defaultExpiration is applied when PerformRequest is called with a
// zero expiration.
func NewSyncClient(async *AsyncClient, strategy retry.Strategy, defaultExpiration time.Duration) *SyncClient {
	return NewSyncClientWithClock(async, strategy, defaultExpiration, clock.Real{})
}

// NewSyncClientWithClock constructs a SyncClient against an explicit
// clock.Clock, letting a test drive expiration/backoff decisions with
// a clock.Simulated instead of real sleeps.
func NewSyncClientWithClock(async *AsyncClient, strategy retry.Strategy, defaultExpiration time.Duration, clk clock.Clock) *SyncClient {
	return &SyncClient{
		async:             async,
		strategy:          strategy,
		defaultExpiration: defaultExpiration,
		clk:               clk,
	}
}

// PerformRequest blocks until req against uri succeeds, exhausts
// retries, or the deadline (expiration, or defaultExpiration if zero)
// is reached.
func (s *SyncClient) PerformRequest(uri ParsedURI, req *Request, expiration time.Time) (*Response, asynccontext.ExecutionResult) {
	if expiration.IsZero() {
		expiration = s.clk.Now().Add(s.defaultExpiration)
	}

	var retryCount uint64
	for {
		if !s.clk.Now().Before(expiration) {
			return nil, asynccontext.Failure(asynccontext.SC_DISPATCHER_OPERATION_EXPIRED)
		}

		response, outcome := s.attempt(uri, req, expiration, retryCount)
		if outcome.Successful() {
			return response, outcome
		}
		if outcome.Status == asynccontext.StatusFailure {
			return nil, outcome
		}

		// Retry path.
		if retryCount >= s.strategy.GetMaximumAllowedRetryCount() {
			return nil, asynccontext.Failure(asynccontext.SC_DISPATCHER_EXHAUSTED_RETRIES)
		}

		delay := s.strategy.GetBackOffDurationInMilliseconds(retryCount + 1)
		if s.clk.Now().Add(delay).After(expiration) {
			return nil, asynccontext.Failure(asynccontext.SC_DISPATCHER_NOT_ENOUGH_TIME_REMAINED_FOR_OPERATION)
		}

		time.Sleep(delay)
		retryCount++
	}
}

// attempt issues a single try and blocks for its outcome. When
// PerformRequest's dispatch fails synchronously (pool exhaustion, a
// not-ready connection), ctx's callback never fires, so attempt uses
// the dispatch result directly instead of waiting on it.
func (s *SyncClient) attempt(uri ParsedURI, req *Request, expiration time.Time, retryCount uint64) (*Response, asynccontext.ExecutionResult) {
	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](req, func(c *PendingCall) {
		doneCh <- c
	})
	ctx.ExpirationTime = expiration
	ctx.RetryCount = retryCount

	dispatch := s.async.PerformRequest(uri, ctx)
	if !dispatch.Successful() {
		return nil, dispatch
	}

	finished := <-doneCh
	return finished.Response, finished.Result
}
