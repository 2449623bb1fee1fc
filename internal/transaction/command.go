// Package transaction implements the per-endpoint two-phase-commit
// phase driver for a budget-consumption transaction: ConsumeBudgetCommand
// walks Begin → Prepare → Commit → Notify → End (or Abort) against one
// PBS endpoint, reconciling a single HTTP 412 precondition-failed
// response via GetTransactionStatus before giving up.
package transaction

import (
	"encoding/json"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/httpclient"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

// Phase is a step in the budget-consumption transaction's lifecycle.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseBegin
	PhasePrepare
	PhaseCommit
	PhaseNotify
	PhaseAbort
	PhaseEnd
)

// String renders the phase the way the wire protocol names it in
// executePhaseRequest.Phase.
func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "BEGIN"
	case PhasePrepare:
		return "PREPARE"
	case PhaseCommit:
		return "COMMIT"
	case PhaseNotify:
		return "NOTIFY"
	case PhaseAbort:
		return "ABORT"
	case PhaseEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

const (
	beginPath      = "/v1/transactions:beginBudgetConsumption"
	executePath    = "/v1/transactions:executePhase"
	getStatusPath  = "/v1/transactions:getStatus"
	preconditionSC = asynccontext.SC_HTTP2_CLIENT_HTTP_STATUS_PRECONDITION_FAILED
)

// ConsumeBudgetMetadata identifies one budget key being consumed and
// the number of tokens the transaction claims against it.
type ConsumeBudgetMetadata struct {
	BudgetKeyName string `json:"budget_key_name"`
	TimeBucket    int64  `json:"time_bucket"`
	TokenCount    uint64 `json:"token_count"`
}

// Status is the result of a GetTransactionStatus call, used to
// reconcile a 412 response.
type Status struct {
	HasFailures            bool
	LastExecutionTimestamp int64
	ExecutionPhase         string
	IsExpired              bool
}

// Command drives one PBS endpoint's view of a single transaction
// through its phases. Every field here is specific to that endpoint:
// a transaction with N configured endpoints has N Commands, one per
// endpoint, each with its own LastExecutionTimestamp.
type Command struct {
	TransactionID     uuid.UUID
	TransactionSecret string
	BudgetKeys        []ConsumeBudgetMetadata

	// LastExecutionTimestamp is the optimistic-concurrency token this
	// endpoint last returned; every subsequent phase call echoes it
	// back, and the endpoint rejects a stale one with 412.
	LastExecutionTimestamp int64

	client   *httpclient.SyncClient
	endpoint httpclient.ParsedURI
}

// NewCommand constructs a Command for one endpoint.
func NewCommand(transactionID uuid.UUID, secret string, budgetKeys []ConsumeBudgetMetadata, client *httpclient.SyncClient, endpoint httpclient.ParsedURI) *Command {
	return &Command{
		TransactionID:     transactionID,
		TransactionSecret: secret,
		BudgetKeys:        budgetKeys,
		client:            client,
		endpoint:          endpoint,
	}
}

// Begin issues the BEGIN phase, the only phase with its own endpoint
// and its own request shape (it carries BudgetKeys; every other phase
// only echoes the transaction id/secret/timestamp).
func (c *Command) Begin(expiration time.Time) asynccontext.ExecutionResult {
	body, err := json.Marshal(beginRequest{
		TransactionID:     c.TransactionID.String(),
		TransactionSecret: c.TransactionSecret,
		BudgetKeys:        c.BudgetKeys,
	})
	if err != nil {
		return asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}

	resp, result := c.client.PerformRequest(c.endpoint, &httpclient.Request{
		Method: httpclient.MethodPost,
		Path:   beginPath,
		Body:   httpclient.BytesBuffer{Bytes: body},
	}, expiration)
	if !result.Successful() {
		return result
	}

	var parsed beginResponse
	if err := json.Unmarshal(resp.Body.Bytes, &parsed); err != nil {
		return asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}
	c.LastExecutionTimestamp = parsed.LastExecutionTimestamp
	return result
}

// ExecutePhase advances the transaction through phase at this
// endpoint. Begin is dispatched through Begin; every other phase goes
// through :executePhase. A single HTTP 412 is reconciled via
// GetTransactionStatus and the same phase reissued exactly once — a
// second 412 propagates as a failure rather than looping.
func (c *Command) ExecutePhase(phase Phase, expiration time.Time) asynccontext.ExecutionResult {
	return c.executePhase(phase, expiration, false)
}

func (c *Command) executePhase(phase Phase, expiration time.Time, reconciled bool) asynccontext.ExecutionResult {
	if phase == PhaseBegin {
		return c.Begin(expiration)
	}

	body, err := json.Marshal(executePhaseRequest{
		TransactionID:          c.TransactionID.String(),
		TransactionSecret:      c.TransactionSecret,
		Phase:                  phase.String(),
		LastExecutionTimestamp: c.LastExecutionTimestamp,
	})
	if err != nil {
		return asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}

	resp, result := c.client.PerformRequest(c.endpoint, &httpclient.Request{
		Method: httpclient.MethodPost,
		Path:   executePath,
		Body:   httpclient.BytesBuffer{Bytes: body},
	}, expiration)

	switch {
	case result.Successful():
		var parsed executePhaseResponse
		if err := json.Unmarshal(resp.Body.Bytes, &parsed); err == nil {
			c.LastExecutionTimestamp = parsed.LastExecutionTimestamp
		}
		return result

	case result.Status == asynccontext.StatusRetry:
		// Timestamp is left untouched; the caller retries unchanged.
		return result

	case result.Code == preconditionSC && !reconciled:
		status, statusResult := c.GetTransactionStatus(expiration)
		if !statusResult.Successful() {
			return statusResult
		}
		c.LastExecutionTimestamp = status.LastExecutionTimestamp
		return c.executePhase(phase, expiration, true)

	default:
		return result
	}
}

// GetTransactionStatus queries this endpoint's current view of the
// transaction, used to reconcile a stale LastExecutionTimestamp after
// a 412.
func (c *Command) GetTransactionStatus(expiration time.Time) (Status, asynccontext.ExecutionResult) {
	body, err := json.Marshal(getStatusRequest{
		TransactionID:     c.TransactionID.String(),
		TransactionSecret: c.TransactionSecret,
	})
	if err != nil {
		return Status{}, asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}

	resp, result := c.client.PerformRequest(c.endpoint, &httpclient.Request{
		Method: httpclient.MethodPost,
		Path:   getStatusPath,
		Body:   httpclient.BytesBuffer{Bytes: body},
	}, expiration)
	if !result.Successful() {
		return Status{}, result
	}

	var parsed getStatusResponse
	if err := json.Unmarshal(resp.Body.Bytes, &parsed); err != nil {
		return Status{}, asynccontext.Failure(asynccontext.SC_UNKNOWN)
	}

	return Status{
		HasFailures:            parsed.HasFailures,
		LastExecutionTimestamp: parsed.LastExecutionTimestamp,
		ExecutionPhase:         parsed.ExecutionPhase,
		IsExpired:              parsed.IsExpired,
	}, result
}
