package httpclient

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/authprovider"
	"github.com/privacysandbox/pbs-client-go/internal/concurrentmap"
)

// hostSession is the fixed-size set of Connections maintained for a
// single (host, service) pair, round-robined by GetConnection.
type hostSession struct {
	connections []*Connection
	counter     atomic.Uint64
	mu          sync.Mutex // guards RecycleConnection against concurrent recyclers
}

// ConnectionPool lazily creates, per (host, service), a fixed
// number of Connections and round-robins requests across them,
// mirroring HttpConnectionPool::GetConnection/RecycleConnection.
type ConnectionPool struct {
	sessions              *concurrentmap.Map[string, *hostSession]
	maxConnectionsPerHost int
	readIdleTimeout       time.Duration
	dialTimeout           time.Duration
	authenticator         *authprovider.Authenticator
}

// NewConnectionPool constructs an empty pool. maxConnectionsPerHost
// must be at least 1.
func NewConnectionPool(maxConnectionsPerHost int, readIdleTimeout, dialTimeout time.Duration) *ConnectionPool {
	if maxConnectionsPerHost < 1 {
		maxConnectionsPerHost = 1
	}
	return &ConnectionPool{
		sessions:              concurrentmap.New[string, *hostSession](),
		maxConnectionsPerHost: maxConnectionsPerHost,
		readIdleTimeout:       readIdleTimeout,
		dialTimeout:           dialTimeout,
	}
}

// SetAuthenticator installs the Authenticator every Connection this
// pool creates from now on attaches to outbound requests. Connections
// already built (an existing session) are not retrofitted; call this
// before the pool's first GetConnection for a given host.
func (p *ConnectionPool) SetAuthenticator(a *authprovider.Authenticator) {
	p.authenticator = a
}

// GetConnection returns a Ready connection for uri, lazily creating and
// initializing the whole per-host session on first use. Exactly one of
// any racing first callers wins the initialization via
// concurrentmap.Map.Insert; losers observe the winner's session.
//
// The returned connection, immediately after this call returns
// successfully, is guaranteed to have been Ready at some point during
// GetConnection — but by the time the caller observes it, it may
// already have dropped; Execute is the authoritative check.
func (p *ConnectionPool) GetConnection(uri ParsedURI) (*Connection, asynccontext.ExecutionResult) {
	key := hostKey(uri.Host, uri.Service)

	session, ok := p.sessions.Find(key)
	if !ok {
		candidate := &hostSession{
			connections: make([]*Connection, p.maxConnectionsPerHost),
		}
		https := uri.Scheme == "https"
		for i := range candidate.connections {
			candidate.connections[i] = NewConnection(uri.Host, uri.Service, https, p.readIdleTimeout, p.dialTimeout)
			candidate.connections[i].SetAuthenticator(p.authenticator)
		}

		if p.sessions.Insert(key, candidate) {
			session = candidate
			for _, conn := range session.connections {
				if res := conn.Init(); !res.Successful() {
					// Erase the session we just inserted: leaving it in
					// the map would permanently poison this (host,
					// service) pool slot with connections that will
					// never be Ready, since nothing else ever retries
					// Init for a session once it's visible to Find.
					p.sessions.Erase(key)
					return nil, res
				}
				conn.Run()
			}
		} else {
			session, ok = p.sessions.Find(key)
			if !ok {
				return nil, asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_CONNECTION_POOL_IS_NOT_AVAILABLE)
			}
		}
	}

	// Round-robin from the counter's position, scanning forward through
	// the rest of the slots for a Ready one rather than failing the
	// whole call just because the picked slot happens to be dropped or
	// (for a session another caller is still in the middle of
	// constructing) not yet initialized.
	start := session.counter.Add(1)
	slots := uint64(len(session.connections))
	var recycling *Connection
	var sawDropped bool

	for i := uint64(0); i < slots; i++ {
		idx := (start + i) % slots
		conn := session.connections[idx]

		if conn.IsReady() {
			return conn, asynccontext.Success()
		}

		if conn.IsDropped() {
			sawDropped = true
			if recycling == nil {
				recycling = conn
				if res := p.recycleConnection(session, int(idx)); !res.Successful() {
					return nil, res
				}
			}
		}
	}

	if sawDropped {
		// At least one slot was dropped; recycling was kicked off for
		// one of them, so the caller should retry shortly.
		return recycling, asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_NO_CONNECTION_ESTABLISHED)
	}

	// No slot is dropped, but none is Ready either: every connection in
	// this session is still mid-Init on the goroutine that won the
	// race to create it. The caller should retry shortly rather than
	// be handed a connection with no underlying ClientConn.
	return nil, asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_HTTP_CONNECTION_NOT_READY)
}

// recycleConnection re-establishes a dropped connection in place,
// guarded by the session's mutex so concurrent callers that observe
// the same dropped slot don't race each other's Stop/Init.
func (p *ConnectionPool) recycleConnection(session *hostSession, idx int) asynccontext.ExecutionResult {
	session.mu.Lock()
	defer session.mu.Unlock()

	conn := session.connections[idx]
	if !conn.IsDropped() {
		// Another caller already recycled this slot.
		return asynccontext.Success()
	}

	conn.Stop()
	conn.Reset()

	if res := conn.Init(); !res.Successful() {
		return res
	}
	conn.Run()
	return asynccontext.Success()
}

// Stop tears down every connection in every session. Calling it more
// than once is safe, since Connection.Stop tolerates repeat calls;
// callers that need to rebuild the pool should construct a new
// ConnectionPool instead of restarting a stopped one.
func (p *ConnectionPool) Stop() {
	for _, key := range p.sessions.Keys() {
		session, ok := p.sessions.Find(key)
		if !ok {
			continue
		}
		for _, conn := range session.connections {
			conn.Stop()
		}
	}
}
