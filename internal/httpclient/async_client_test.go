package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
)

func TestAsyncClientPerformRequestDispatchesAndCompletes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	pool := NewConnectionPool(1, 2*time.Second, 2*time.Second)
	defer pool.Stop()
	client := NewAsyncClient(pool)

	uri := ParsedURI{Scheme: "http", Host: host, Service: service}

	doneCh := make(chan *PendingCall, 1)
	ctx := asynccontext.New[Request, Response](&Request{Method: MethodGet, Path: "/ping"}, func(c *PendingCall) {
		doneCh <- c
	})

	dispatch := client.PerformRequest(uri, ctx)
	if !dispatch.Successful() {
		t.Fatalf("expected successful dispatch, got %v", dispatch)
	}

	select {
	case finished := <-doneCh:
		if !finished.Result.Successful() {
			t.Fatalf("expected success, got %v", finished.Result)
		}
		if string(finished.Response.Body.Bytes) != "pong" {
			t.Fatalf("unexpected body: %q", finished.Response.Body.Bytes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
}
