package httpclient

import "github.com/privacysandbox/pbs-client-go/internal/asynccontext"

// AsyncClient is the thinnest possible façade over a ConnectionPool:
// resolve the target URI to a connection, then hand the call to
// Connection.Execute. It never blocks for the response; ctx's callback
// carries the eventual outcome exactly as Connection.Execute leaves it.
type AsyncClient struct {
	pool *ConnectionPool
}

// NewAsyncClient constructs an AsyncClient backed by pool.
func NewAsyncClient(pool *ConnectionPool) *AsyncClient {
	return &AsyncClient{pool: pool}
}

// PerformRequest resolves uri to a connection and dispatches ctx on it.
// The returned ExecutionResult only reflects whether the call was
// successfully dispatched (pool resolution + Execute's synchronous
// checks) — it is not the eventual request outcome, which arrives via
// ctx's callback when the dispatch result is Success. When the
// returned result is not Success, ctx's callback is never invoked, by
// the same contract Connection.Execute upholds.
func (a *AsyncClient) PerformRequest(uri ParsedURI, ctx *PendingCall) asynccontext.ExecutionResult {
	conn, result := a.pool.GetConnection(uri)
	if !result.Successful() {
		return result
	}
	return conn.Execute(ctx)
}
