package asynccontext

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/logging"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

// DefaultExpirationDuration is the default deadline applied to a
// Context that isn't given one explicitly (kAsyncContextExpirationDurationInSeconds).
const DefaultExpirationDuration = 30 * time.Second

// Callback is invoked exactly once when a Context finishes.
type Callback[Req any, Resp any] func(ctx *Context[Req, Resp])

// Context is the generic envelope every asynchronous operation in the
// client carries: identity (activity/correlation ids), the
// request/response pair, the outcome, and expiration/retry
// bookkeeping. It is always passed and stored by pointer so that
// Finish's single invocation of the callback is observable by every
// holder of the pointer.
type Context[Req any, Resp any] struct {
	ActivityID    uuid.UUID
	ParentID      uuid.UUID
	CorrelationID uuid.UUID

	Request  *Req
	Response *Resp

	Result ExecutionResult

	ExpirationTime time.Time
	RetryCount     uint64

	callback Callback[Req, Resp]
	finished atomic.Bool
}

// New constructs a root Context with no parent: a fresh activity id is
// generated and doubles as the correlation id.
func New[Req any, Resp any](request *Req, callback Callback[Req, Resp]) *Context[Req, Resp] {
	id := uuid.New()
	return newContext[Req, Resp](id, uuid.Zero, id, request, callback)
}

// NewWithParent constructs a Context that is a child of parentID,
// inheriting correlationID from the parent chain.
func NewWithParent[Req any, Resp any](parentID, correlationID uuid.UUID, request *Req, callback Callback[Req, Resp]) *Context[Req, Resp] {
	return newContext[Req, Resp](uuid.New(), parentID, correlationID, request, callback)
}

// NewFromParentContext derives a child Context from an existing parent
// Context of a (possibly different) Req/Resp pair, inheriting its
// activity id as the parent id and its correlation id as-is.
func NewFromParentContext[ParentReq any, ParentResp any, Req any, Resp any](
	parent *Context[ParentReq, ParentResp], request *Req, callback Callback[Req, Resp],
) *Context[Req, Resp] {
	return newContext[Req, Resp](uuid.New(), parent.ActivityID, parent.CorrelationID, request, callback)
}

func newContext[Req any, Resp any](activityID, parentID, correlationID uuid.UUID, request *Req, callback Callback[Req, Resp]) *Context[Req, Resp] {
	return &Context[Req, Resp]{
		ActivityID:     activityID,
		ParentID:       parentID,
		CorrelationID:  correlationID,
		Request:        request,
		Result:         Failure(SC_UNKNOWN),
		ExpirationTime: time.Now().Add(DefaultExpirationDuration),
		callback:       callback,
	}
}

// Finish invokes the callback exactly once. Subsequent calls are
// no-ops; this is the primitive every connection/command layer relies
// on to guarantee "callback exactly once" under concurrent completion
// attempts (e.g. a racing on_close and a pool-recycle drain).
func (c *Context[Req, Resp]) Finish() {
	if !c.finished.CompareAndSwap(false, true) {
		return
	}
	if !c.Result.Successful() {
		logging.Op().Warn("async operation finished with non-success result",
			"activity_id", c.ActivityID.String(),
			"correlation_id", c.CorrelationID.String(),
			"status", c.Result.Status.String(),
			"code", c.Result.Code.String(),
			"retry_count", c.RetryCount,
			"request_type", fmt.Sprintf("%T", c.Request),
			"response_type", fmt.Sprintf("%T", c.Response),
		)
	}
	if c.callback != nil {
		c.callback(c)
	}
}

// IsFinished reports whether Finish has already run.
func (c *Context[Req, Resp]) IsFinished() bool {
	return c.finished.Load()
}

// IsExpired reports whether ExpirationTime has passed as of now.
func (c *Context[Req, Resp]) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpirationTime)
}

// Executor schedules a finish callback to run asynchronously,
// mirroring the teacher's background-dispatch idiom
// (internal/asyncqueue) generalized to a minimal single-method
// interface. Priority follows the same low/high convention as the
// original dispatcher (0 = normal, higher = more urgent); concrete
// executors may ignore it.
type Executor interface {
	Schedule(priority int, work func()) error
}

// InlineExecutor runs work synchronously in the calling goroutine. It
// satisfies Executor for callers (like SyncHttpClient) that have no
// background dispatcher of their own.
type InlineExecutor struct{}

// Schedule runs work immediately and always succeeds.
func (InlineExecutor) Schedule(_ int, work func()) error {
	work()
	return nil
}

// GoroutineExecutor schedules work onto a new goroutine.
type GoroutineExecutor struct{}

// Schedule launches work on a new goroutine and always succeeds.
func (GoroutineExecutor) Schedule(_ int, work func()) error {
	go work()
	return nil
}

// FinishContext finishes ctx with result, either synchronously or by
// handing the Finish call to executor at the given priority. If
// scheduling fails, it falls back to finishing synchronously rather
// than losing the callback.
func FinishContext[Req any, Resp any](result ExecutionResult, ctx *Context[Req, Resp], executor Executor, priority int) {
	ctx.Result = result
	if executor == nil {
		ctx.Finish()
		return
	}
	if err := executor.Schedule(priority, ctx.Finish); err != nil {
		ctx.Finish()
	}
}
