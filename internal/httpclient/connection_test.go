package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/authprovider"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

type fakeRoleCredentialsProvider struct {
	accessKeyID string
}

func (f fakeRoleCredentialsProvider) GetCredentials(ctx context.Context, roleArn string) (aws.Credentials, error) {
	return aws.Credentials{AccessKeyID: f.accessKeyID}, nil
}

// newH2CServer starts a plaintext (h2c) HTTP/2 test server so Connection
// can be exercised without TLS certificate plumbing.
func newH2CServer(t *testing.T, handler http.Handler) (host, service string, cleanup func()) {
	t.Helper()
	h2s := &http2.Server{}
	server := httptest.NewServer(h2c.NewHandler(handler, h2s))
	addr := server.Listener.Addr().String()
	host, service, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	return host, service, server.Close
}

func TestExecuteReturnsRetryWithoutCallbackWhenNotReady(t *testing.T) {
	conn := NewConnection("example.invalid", "80", false, time.Second, time.Second)

	called := false
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodGet, Path: "/x"}, func(c *PendingCall) {
		called = true
	})

	result := conn.Execute(ctx)
	if result.Successful() || result.Status != asynccontext.StatusRetry {
		t.Fatalf("expected Retry, got %v", result)
	}
	if called {
		t.Fatalf("callback must not be invoked when connection is not ready")
	}
	if conn.pendingCalls.Len() != 0 {
		t.Fatalf("expected no pending calls registered")
	}
}

func TestCancelPendingCallbacksDroppedUsesRetry(t *testing.T) {
	conn := NewConnection("example.invalid", "80", false, time.Second, time.Second)

	resultCh := make(chan asynccontext.ExecutionResult, 1)
	ctx := asynccontext.New[Request, Response](&Request{}, func(c *PendingCall) {
		resultCh <- c.Result
	})
	conn.pendingCalls.Insert(uuid.New(), ctx)

	conn.CancelPendingCallbacks(true)

	result := <-resultCh
	if result.Status != asynccontext.StatusRetry || result.Code != asynccontext.SC_HTTP2_CLIENT_CONNECTION_DROPPED {
		t.Fatalf("expected Retry/CONNECTION_DROPPED, got %v", result)
	}
	if conn.pendingCalls.Len() != 0 {
		t.Fatalf("expected pending calls drained")
	}
}

func TestCancelPendingCallbacksStoppedUsesFailure(t *testing.T) {
	conn := NewConnection("example.invalid", "80", false, time.Second, time.Second)

	resultCh := make(chan asynccontext.ExecutionResult, 1)
	ctx := asynccontext.New[Request, Response](&Request{}, func(c *PendingCall) {
		resultCh <- c.Result
	})
	conn.pendingCalls.Insert(uuid.New(), ctx)

	conn.CancelPendingCallbacks(false)

	result := <-resultCh
	if result.Status != asynccontext.StatusFailure || result.Code != asynccontext.SC_HTTP2_CLIENT_CONNECTION_DROPPED {
		t.Fatalf("expected Failure/CONNECTION_DROPPED, got %v", result)
	}
}

func TestInitRunExecuteRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	})
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	conn := NewConnection(host, service, false, 2*time.Second, 2*time.Second)
	if res := conn.Init(); !res.Successful() {
		t.Fatalf("Init failed: %v", res)
	}
	if res := conn.Run(); !res.Successful() {
		t.Fatalf("Run failed: %v", res)
	}
	defer conn.Stop()

	if !conn.IsReady() {
		t.Fatalf("expected connection to be ready after Init/Run")
	}

	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodGet, Path: "/ok"}, func(c *PendingCall) {
		doneCh <- c
	})

	if res := conn.Execute(ctx); !res.Successful() {
		t.Fatalf("Execute failed to dispatch: %v", res)
	}

	select {
	case finished := <-doneCh:
		if !finished.Result.Successful() {
			t.Fatalf("expected success result, got %v", finished.Result)
		}
		if finished.Response == nil || finished.Response.StatusCode != http.StatusOK {
			t.Fatalf("unexpected response: %+v", finished.Response)
		}
		if string(finished.Response.Body.Bytes) != "hello" {
			t.Fatalf("unexpected body: %q", finished.Response.Body.Bytes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for request to complete")
	}
}

func TestExecuteMapsServerErrorStatusToRetry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	conn := NewConnection(host, service, false, 2*time.Second, 2*time.Second)
	if res := conn.Init(); !res.Successful() {
		t.Fatalf("Init failed: %v", res)
	}
	conn.Run()
	defer conn.Stop()

	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodGet, Path: "/boom"}, func(c *PendingCall) {
		doneCh <- c
	})
	if res := conn.Execute(ctx); !res.Successful() {
		t.Fatalf("Execute failed to dispatch: %v", res)
	}

	select {
	case finished := <-doneCh:
		if finished.Result.Status != asynccontext.StatusRetry {
			t.Fatalf("expected Retry for 503, got %v", finished.Result)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for request to complete")
	}
}

func TestExecuteRejectsUnsupportedMethod(t *testing.T) {
	mux := http.NewServeMux()
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	conn := NewConnection(host, service, false, 2*time.Second, 2*time.Second)
	conn.Init()
	conn.Run()
	defer conn.Stop()

	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodPut, Path: "/ok"}, func(c *PendingCall) {
		doneCh <- c
	})
	conn.Execute(ctx)

	select {
	case finished := <-doneCh:
		if finished.Result.Status != asynccontext.StatusFailure || finished.Result.Code != asynccontext.SC_HTTP2_CLIENT_HTTP_METHOD_NOT_SUPPORTED {
			t.Fatalf("expected method-not-supported failure, got %v", finished.Result)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for request to complete")
	}
}

func TestSendRequestUsesAuthenticatorWhenConfigured(t *testing.T) {
	var gotAuthz, gotClaimedIdentity string
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		gotAuthz = r.Header.Get("Authorization")
		gotClaimedIdentity = r.Header.Get(authprovider.HeaderClaimedIdentity)
		w.WriteHeader(http.StatusOK)
	})
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	conn := NewConnection(host, service, false, 2*time.Second, 2*time.Second)
	conn.SetAuthenticator(authprovider.New(authprovider.ProviderAWS, fakeRoleCredentialsProvider{accessKeyID: "AKIDEXAMPLE"}, nil, "arn:aws:iam::123:role/pbs", ""))
	if res := conn.Init(); !res.Successful() {
		t.Fatalf("Init failed: %v", res)
	}
	conn.Run()
	defer conn.Stop()

	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodGet, Path: "/ok"}, func(c *PendingCall) {
		doneCh <- c
	})
	if res := conn.Execute(ctx); !res.Successful() {
		t.Fatalf("Execute failed to dispatch: %v", res)
	}

	select {
	case finished := <-doneCh:
		if !finished.Result.Successful() {
			t.Fatalf("expected success result, got %v", finished.Result)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for request to complete")
	}

	if gotAuthz == "" {
		t.Fatalf("expected an Authorization header set by the authenticator")
	}
	if gotClaimedIdentity != "AKIDEXAMPLE" {
		t.Fatalf("expected claimed identity header %q, got %q", "AKIDEXAMPLE", gotClaimedIdentity)
	}
}
