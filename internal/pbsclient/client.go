// Package pbsclient implements the top-level orchestrator that fans a
// budget-consumption transaction's phases out across every configured
// PBS endpoint and folds the per-endpoint outcomes into a single
// worst-result verdict.
package pbsclient

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/authprovider"
	"github.com/privacysandbox/pbs-client-go/internal/config"
	"github.com/privacysandbox/pbs-client-go/internal/httpclient"
	"github.com/privacysandbox/pbs-client-go/internal/retry"
	"github.com/privacysandbox/pbs-client-go/internal/transaction"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

// Client drives one transaction's Commands across every configured PBS
// endpoint. It holds one transaction.Command per endpoint so that each
// endpoint's own LastExecutionTimestamp is tracked independently.
type Client struct {
	commands          []*transaction.Command
	defaultExpiration time.Duration
}

// New constructs a Client, parsing every endpoint URL and building one
// ConnectionPool + SyncClient + transaction.Command per endpoint.
func New(cfg *config.Config, transactionID uuid.UUID, transactionSecret string, budgetKeys []transaction.ConsumeBudgetMetadata) (*Client, asynccontext.ExecutionResult) {
	strategy := retry.New(uint64(cfg.Retry.MaxRetries), cfg.Retry.InitialDelay, cfg.Retry.MaxDelay, cfg.Retry.JitterPercent)

	// No concrete RoleCredentialsProvider/AuthTokenProviderCache ships
	// with this client (an authorization-token issuer is out of
	// scope); wiring them in is left to a caller importing this
	// package directly. A configured aws-sigv4/gcp-bearer provider with
	// no collaborator surfaces as authprovider.ErrNoCredentialSource on
	// the first request rather than silently sending unauthenticated
	// ones.
	authenticator := authprovider.New(authprovider.Provider(cfg.Auth.Provider), nil, nil, cfg.Auth.RoleArn, cfg.Auth.Audience)

	commands := make([]*transaction.Command, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		uri, result := httpclient.ParseURI(ep.URL)
		if !result.Successful() {
			return nil, result
		}
		pool := httpclient.NewConnectionPool(cfg.HTTP.MaxConnectionsPerHost, cfg.HTTP.ReadIdleTimeout, cfg.HTTP.DialTimeout)
		pool.SetAuthenticator(authenticator)
		syncClient := httpclient.NewSyncClient(httpclient.NewAsyncClient(pool), strategy, cfg.Transaction.DefaultExpiration)
		commands = append(commands, transaction.NewCommand(transactionID, transactionSecret, budgetKeys, syncClient, uri))
	}

	return &Client{
		commands:          commands,
		defaultExpiration: cfg.Transaction.DefaultExpiration,
	}, asynccontext.Success()
}

func (c *Client) expiration(expiration time.Time) time.Time {
	if expiration.IsZero() {
		return time.Now().Add(c.defaultExpiration)
	}
	return expiration
}

// InitiateConsumeBudgetTransaction issues Begin against every endpoint
// concurrently. If any endpoint fails, every endpoint that had already
// begun is aborted before the failure is returned, so a transaction
// never lingers half-begun.
func (c *Client) InitiateConsumeBudgetTransaction(expiration time.Time) asynccontext.ExecutionResult {
	expiration = c.expiration(expiration)

	began := make([]bool, len(c.commands))
	acc := newResultAccumulator(len(c.commands))

	var wg sync.WaitGroup
	for i, cmd := range c.commands {
		wg.Add(1)
		go func(i int, cmd *transaction.Command) {
			defer wg.Done()
			result := cmd.Begin(expiration)
			began[i] = result.Successful()
			acc.report(result)
		}(i, cmd)
	}
	wg.Wait()

	worst := acc.worst()
	if worst.Successful() {
		return worst
	}

	var abortWg sync.WaitGroup
	for i, cmd := range c.commands {
		if !began[i] {
			continue
		}
		abortWg.Add(1)
		go func(cmd *transaction.Command) {
			defer abortWg.Done()
			cmd.ExecutePhase(transaction.PhaseAbort, expiration)
		}(cmd)
	}
	abortWg.Wait()

	return worst
}

// ExecuteTransactionPhase fans phase out to every endpoint
// concurrently and folds the outcomes: any Failure wins outright;
// absent a Failure, any Retry beats an all-Success result.
func (c *Client) ExecuteTransactionPhase(phase transaction.Phase, expiration time.Time) asynccontext.ExecutionResult {
	expiration = c.expiration(expiration)

	acc := newResultAccumulator(len(c.commands))
	var wg sync.WaitGroup
	for _, cmd := range c.commands {
		wg.Add(1)
		go func(cmd *transaction.Command) {
			defer wg.Done()
			acc.report(cmd.ExecutePhase(phase, expiration))
		}(cmd)
	}
	wg.Wait()

	return acc.worst()
}

// GetTransactionStatus queries a single endpoint (by index) for its
// view of the transaction's status.
func (c *Client) GetTransactionStatus(endpointIndex int, expiration time.Time) (transaction.Status, asynccontext.ExecutionResult) {
	if endpointIndex < 0 || endpointIndex >= len(c.commands) {
		return transaction.Status{}, asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}
	return c.commands[endpointIndex].GetTransactionStatus(c.expiration(expiration))
}

// resultAccumulator folds concurrently-arriving per-endpoint results
// into a single worst-result verdict. Each call to report is safe to
// make from its own goroutine: promotion is a compare-and-swap loop
// over a shared slot, admitting exactly one writer per promotion
// instead of serializing the whole fan-out behind a mutex.
type resultAccumulator struct {
	count atomic.Int64
	slot  atomic.Value
}

func newResultAccumulator(expected int) *resultAccumulator {
	acc := &resultAccumulator{}
	acc.slot.Store(asynccontext.Success())
	return acc
}

func (a *resultAccumulator) report(result asynccontext.ExecutionResult) {
	a.count.Add(1)
	for {
		current := a.slot.Load().(asynccontext.ExecutionResult)
		worst := asynccontext.Worse(current, result)
		if worst == current {
			return
		}
		if a.slot.CompareAndSwap(current, worst) {
			return
		}
	}
}

func (a *resultAccumulator) worst() asynccontext.ExecutionResult {
	return a.slot.Load().(asynccontext.ExecutionResult)
}
