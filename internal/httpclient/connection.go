package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/authprovider"
	"github.com/privacysandbox/pbs-client-go/internal/concurrentmap"
	"github.com/privacysandbox/pbs-client-go/internal/httputils"
	"github.com/privacysandbox/pbs-client-go/internal/logging"
	"github.com/privacysandbox/pbs-client-go/internal/observability"
	"github.com/privacysandbox/pbs-client-go/internal/telemetry"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

// ActivityHeader is the header carrying the originating AsyncContext's
// activity id, force-overwritten on every outbound request so a
// caller-supplied value can never shadow the real one.
const ActivityHeader = "x-gscp-client-activity-id"

// PendingCall is an in-flight Execute() call, keyed by a request-local
// UUID distinct from the AsyncContext's own activity id.
type PendingCall = asynccontext.Context[Request, Response]

// Connection owns one golang.org/x/net/http2 ClientConn for a single
// (host, port, scheme), modeling the original's one-nghttp2-session-
// per-HttpConnection design. A dedicated goroutine (started by Run)
// watches the underlying net.Conn for closure, standing in for the
// nghttp2 IO thread: it is the single owner that detects connection
// death and drives the Ready→Dropped transition.
type Connection struct {
	host    string
	service string
	https   bool

	readIdleTimeout time.Duration
	dialTimeout     time.Duration

	transport  *http2.Transport
	netConn    net.Conn
	clientConn *http2.ClientConn

	ready   atomic.Bool
	dropped atomic.Bool

	pendingCalls *concurrentmap.Map[uuid.UUID, *PendingCall]

	authenticator *authprovider.Authenticator

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConnection constructs a Connection in the Initializing state.
func NewConnection(host, service string, https bool, readIdleTimeout, dialTimeout time.Duration) *Connection {
	return &Connection{
		host:            host,
		service:         service,
		https:           https,
		readIdleTimeout: readIdleTimeout,
		dialTimeout:     dialTimeout,
		pendingCalls:    concurrentmap.New[uuid.UUID, *PendingCall](),
	}
}

// SetAuthenticator installs the Authenticator this connection attaches
// to every outbound request's headers. Called by ConnectionPool right
// after construction, before Init; nil is valid and leaves
// sendRequest to fall back to setting only ActivityHeader.
func (c *Connection) SetAuthenticator(a *authprovider.Authenticator) {
	c.authenticator = a
}

// IsReady is a lock-free peek at connection readiness; callers that
// intend to issue a request must treat this as a hint and let Execute
// confirm it authoritatively.
func (c *Connection) IsReady() bool {
	return c.ready.Load() && !c.dropped.Load()
}

// IsDropped is a lock-free peek at whether the connection has been
// observed dead.
func (c *Connection) IsDropped() bool {
	return c.dropped.Load()
}

// Init dials the remote host and establishes the HTTP/2 ClientConn.
func (c *Connection) Init() asynccontext.ExecutionResult {
	addr := net.JoinHostPort(c.host, c.service)
	start := time.Now()

	dialer := &net.Dialer{Timeout: c.dialTimeout}

	var netConn net.Conn
	var err error
	if c.https {
		tlsConfig := &tls.Config{
			ServerName: c.host,
			NextProtos: []string{"h2"},
		}
		netConn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		netConn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		logging.Op().Warn("http connection dial failed", "address", addr, "error", err)
		return asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_TLS_CTX_ERROR)
	}

	c.transport = &http2.Transport{
		ReadIdleTimeout: c.readIdleTimeout,
	}
	if !c.https {
		c.transport.AllowHTTP = true
		c.transport.DialTLSContext = func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return netConn, nil
		}
	}

	clientConn, err := c.transport.NewClientConn(netConn)
	if err != nil {
		netConn.Close()
		logging.Op().Warn("http2 client conn setup failed", "address", addr, "error", err)
		return asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_TLS_CTX_ERROR)
	}

	c.netConn = netConn
	c.clientConn = clientConn
	connectMs := time.Since(start).Milliseconds()
	telemetry.RecordConnectionEstablished(connectMs)
	telemetry.RecordOTelConnectionEstablished(context.Background(), connectMs)

	return asynccontext.Success()
}

// Run launches the watcher goroutine that detects connection closure
// and the read-loop that stands in for the nghttp2 IO thread.
func (c *Connection) Run() asynccontext.ExecutionResult {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	c.OnConnectionCreated()

	go c.watch()

	return asynccontext.Success()
}

func (c *Connection) watch() {
	defer close(c.doneCh)

	// Block until the underlying connection is closed or Stop fires.
	// http2.ClientConn exposes no blocking "wait for close" primitive
	// directly, so the watcher polls CanTakeNewRequest, which flips to
	// false once the conn is gone or GOAWAY'd.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.clientConn == nil || !c.clientConn.CanTakeNewRequest() {
				c.OnConnectionError()
				return
			}
		}
	}
}

// OnConnectionCreated transitions the connection to Ready.
func (c *Connection) OnConnectionCreated() {
	c.ready.Store(true)
	c.dropped.Store(false)
	telemetry.Global().RecordConnectionOpened()
}

// OnConnectionError transitions the connection to Dropped, records the
// error, and drains every pending call with Retry.
func (c *Connection) OnConnectionError() {
	if c.dropped.CompareAndSwap(false, true) {
		c.ready.Store(false)
		telemetry.Global().RecordConnectError()
		telemetry.Global().RecordConnectionClosed()
		c.CancelPendingCallbacks(true)
	}
}

// Stop tears the connection down: it closes the HTTP/2 client conn,
// stops the watcher goroutine, joins it, and then drains any pending
// calls with Failure (as opposed to the Retry used when the connection
// merely dropped out from under live traffic).
func (c *Connection) Stop() asynccontext.ExecutionResult {
	wasReady := c.ready.Load()
	c.ready.Store(false)

	if c.stopCh != nil {
		select {
		case <-c.stopCh:
		default:
			close(c.stopCh)
		}
	}
	if c.doneCh != nil {
		<-c.doneCh
	}

	if c.clientConn != nil {
		c.clientConn.Close()
	}
	if c.netConn != nil {
		c.netConn.Close()
	}

	if wasReady {
		telemetry.Global().RecordConnectionClosed()
	}

	c.CancelPendingCallbacks(false)

	return asynccontext.Success()
}

// Reset clears the connection's state so it can be re-Init'd by
// RecycleConnection, preserving its place in the pool's slot.
func (c *Connection) Reset() {
	c.ready.Store(false)
	c.dropped.Store(false)
	c.clientConn = nil
	c.netConn = nil
	c.stopCh = nil
	c.doneCh = nil
}

// CancelPendingCallbacks atomically erases and finishes every entry in
// pendingCalls. dropped selects Retry (connection dropped mid-flight,
// the caller should reissue) vs Failure (connection was deliberately
// stopped). Erase races (a concurrent on-close finishing the same
// entry) are skipped, not double-finished.
func (c *Connection) CancelPendingCallbacks(dropped bool) {
	code := asynccontext.SC_HTTP2_CLIENT_CONNECTION_DROPPED
	keys := c.pendingCalls.Keys()
	for _, key := range keys {
		entry, ok := c.pendingCalls.Find(key)
		if !ok {
			continue
		}
		if !c.pendingCalls.Erase(key) {
			continue
		}
		if dropped {
			entry.Result = asynccontext.Retry(code)
		} else {
			entry.Result = asynccontext.Failure(code)
		}
		entry.Finish()
	}
}

// Execute submits ctx.Request over the connection. If the connection
// is not observed Ready, it returns Retry without inserting into
// pendingCalls or invoking ctx's callback at all — the caller decides
// whether to retry or fail the larger operation.
func (c *Connection) Execute(ctx *PendingCall) asynccontext.ExecutionResult {
	if !c.IsReady() {
		return asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_NO_CONNECTION_ESTABLISHED)
	}

	id := uuid.New()
	if !c.pendingCalls.Insert(id, ctx) {
		// UUID collision is effectively impossible; treat as a
		// transient failure to issue rather than silently dropping ctx.
		return asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_FAILED_TO_ISSUE_HTTP_REQUEST)
	}

	telemetry.Global().RequestStarted()
	go c.sendRequest(id, ctx)

	return asynccontext.Success()
}

func (c *Connection) eraseAndFinish(id uuid.UUID, ctx *PendingCall, result asynccontext.ExecutionResult) {
	c.pendingCalls.Erase(id)
	ctx.Result = result
	ctx.Finish()
}

func (c *Connection) sendRequest(id uuid.UUID, ctx *PendingCall) {
	start := time.Now()
	req := ctx.Request
	endpoint := net.JoinHostPort(c.host, c.service)

	spanCtx, span := observability.StartRequestSpan(context.Background(), endpoint, ctx.ActivityID, ctx.CorrelationID, ctx.RetryCount)
	finish := func(result asynccontext.ExecutionResult) {
		observability.FinishRequestSpan(span, time.Since(start).Milliseconds(), result)
		c.eraseAndFinish(id, ctx, result)
	}

	var method string
	switch req.Method {
	case MethodGet:
		method = http.MethodGet
	case MethodPost:
		method = http.MethodPost
	default:
		logging.OpForTransaction("", ctx.ActivityID.String(), ctx.CorrelationID.String(), "").
			Warn("unsupported http method on outbound request", append([]any{"endpoint", endpoint}, observability.LogFields(spanCtx)...)...)
		finish(asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_HTTP_METHOD_NOT_SUPPORTED))
		return
	}

	escapedPath, result := httputils.EscapeURIQuery(req.Path, req.Query)
	if !result.Successful() {
		finish(result)
		return
	}

	scheme := "http"
	if c.https {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, endpoint, escapedPath)

	var body io.Reader
	if len(req.Body.Bytes) > 0 {
		body = &byteReader{data: req.Body.Bytes}
	}

	httpReq, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		finish(asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_INVALID_URI))
		return
	}

	if req.Headers != nil {
		for k, values := range req.Headers {
			for _, v := range values {
				httpReq.Header.Add(k, v)
			}
		}
	}
	httpReq.Header.Set("content-length", strconv.Itoa(len(req.Body.Bytes)))

	if c.authenticator != nil {
		if err := c.authenticator.Authenticate(spanCtx, httpReq.Header, ctx.ActivityID.String()); err != nil {
			logging.OpForTransaction("", ctx.ActivityID.String(), ctx.CorrelationID.String(), "").
				Warn("authenticator failed to credential outbound request", "endpoint", endpoint, "error", err)
			finish(asynccontext.Failure(asynccontext.SC_UNKNOWN))
			return
		}
	} else {
		httpReq.Header.Set(ActivityHeader, ctx.ActivityID.String())
	}

	if tc := observability.ExtractTraceContext(spanCtx); tc.TraceParent != "" {
		httpReq.Header.Set("traceparent", tc.TraceParent)
		if tc.TraceState != "" {
			httpReq.Header.Set("tracestate", tc.TraceState)
		}
	}

	resp, err := c.clientConn.RoundTrip(httpReq)
	if err != nil {
		logging.OpForTransaction("", ctx.ActivityID.String(), ctx.CorrelationID.String(), "").
			Warn("round trip failed, forcing connection recycle",
				append([]any{"endpoint", endpoint, "error", err}, observability.LogFields(spanCtx)...)...)
		finish(asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_FAILED_TO_ISSUE_HTTP_REQUEST))
		c.OnConnectionError()
		return
	}
	defer resp.Body.Close()

	respBuf := BytesBuffer{}
	if resp.ContentLength >= 0 {
		respBuf.Reserve(resp.ContentLength)
	}
	data, readErr := io.ReadAll(resp.Body)
	respBuf.Append(data)

	statusResult := asynccontext.StatusCodeToExecutionResult(resp.StatusCode)

	var final asynccontext.ExecutionResult
	if readErr != nil {
		// A transport error racing a success-mapped status still wins.
		if statusResult.Status != asynccontext.StatusSuccess {
			final = statusResult
		} else {
			final = asynccontext.Retry(asynccontext.SC_HTTP2_CLIENT_HTTP_REQUEST_CLOSE_ERROR)
		}
	} else {
		final = statusResult
	}

	ctx.Response = &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBuf,
	}

	durationMs := time.Since(start).Milliseconds()
	telemetry.Global().RequestFinished(durationMs, final.Successful(), final.Retryable(), endpoint, resp.StatusCode)
	telemetry.RecordOTelRequest(context.Background(), durationMs, final.Successful(),
		otelmetric.WithAttributes(
			attribute.String("server_address", endpoint),
			attribute.Int("http_response_status_code", resp.StatusCode),
		))

	finish(final)
}

// byteReader is a minimal io.Reader over a byte slice, avoiding a
// dependency on bytes.Reader's seek semantics the request body
// doesn't need.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
