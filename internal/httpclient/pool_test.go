package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
)

func TestGetConnectionRoundRobinsAcrossSlots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	pool := NewConnectionPool(2, 2*time.Second, 2*time.Second)
	defer pool.Stop()

	uri := ParsedURI{Scheme: "http", Host: host, Service: service, Path: "/ok"}

	first, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}
	second, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}
	third, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}

	if first == second {
		t.Fatalf("expected round-robin to pick distinct connections on consecutive calls")
	}
	if first != third {
		t.Fatalf("expected round-robin to cycle back after 2 slots")
	}
}

func TestGetConnectionReusesExistingSessionAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	pool := NewConnectionPool(1, 2*time.Second, 2*time.Second)
	defer pool.Stop()

	uri := ParsedURI{Scheme: "http", Host: host, Service: service, Path: "/"}

	conn1, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}
	conn2, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}
	if conn1 != conn2 {
		t.Fatalf("expected a single-slot session to reuse the same connection")
	}
	if len(pool.sessions.Keys()) != 1 {
		t.Fatalf("expected exactly one session to have been created")
	}
}

func TestGetConnectionRecyclesDroppedSlot(t *testing.T) {
	mux := http.NewServeMux()
	host, service, cleanup := newH2CServer(t, mux)
	defer cleanup()

	pool := NewConnectionPool(1, 2*time.Second, 2*time.Second)
	defer pool.Stop()

	uri := ParsedURI{Scheme: "http", Host: host, Service: service, Path: "/"}

	conn, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("GetConnection failed: %v", result)
	}

	conn.dropped.Store(true)
	conn.ready.Store(false)

	_, result = pool.GetConnection(uri)
	if result.Status.String() != "Retry" {
		t.Fatalf("expected Retry while the slot recycles, got %v", result)
	}

	recycled, result := pool.GetConnection(uri)
	if !result.Successful() {
		t.Fatalf("expected the recycled slot to be ready on the next call: %v", result)
	}
	if !recycled.IsReady() {
		t.Fatalf("expected recycled connection to be ready")
	}
}

func TestGetConnectionErasesSessionOnInitFailure(t *testing.T) {
	pool := NewConnectionPool(1, 2*time.Second, 50*time.Millisecond)
	defer pool.Stop()

	// Port 1 is privileged and never listening in test environments, so
	// the dial fails (connection refused) without needing to wait out
	// dialTimeout.
	uri := ParsedURI{Scheme: "http", Host: "127.0.0.1", Service: "1", Path: "/"}

	_, result := pool.GetConnection(uri)
	if result.Successful() {
		t.Fatalf("expected GetConnection to fail dialing a closed port")
	}

	key := hostKey(uri.Host, uri.Service)
	if _, ok := pool.sessions.Find(key); ok {
		t.Fatalf("expected the poisoned session to be erased after an Init failure, not left in the pool forever")
	}
}

func TestGetConnectionReturnsNotReadyWhileSessionStillInitializing(t *testing.T) {
	pool := NewConnectionPool(2, 2*time.Second, 2*time.Second)
	defer pool.Stop()

	uri := ParsedURI{Scheme: "http", Host: "example.invalid", Service: "80", Path: "/"}
	key := hostKey(uri.Host, uri.Service)

	// Simulate the race window between a winning caller inserting the
	// session and finishing Init/Run on every slot: every connection
	// exists but none has been dialed yet, so neither IsReady() nor
	// IsDropped() is true for any of them.
	session := &hostSession{
		connections: []*Connection{
			NewConnection(uri.Host, uri.Service, false, 2*time.Second, 2*time.Second),
			NewConnection(uri.Host, uri.Service, false, 2*time.Second, 2*time.Second),
		},
	}
	pool.sessions.Insert(key, session)

	_, result := pool.GetConnection(uri)
	if result.Status != asynccontext.StatusRetry {
		t.Fatalf("expected Retry while the session is still initializing, got %v", result.Status)
	}
	if result.Code != asynccontext.SC_HTTP2_CLIENT_HTTP_CONNECTION_NOT_READY {
		t.Fatalf("expected SC_HTTP2_CLIENT_HTTP_CONNECTION_NOT_READY, got %v", result.Code)
	}
}
