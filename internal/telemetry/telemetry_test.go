package telemetry

import "testing"

func TestConnectionGaugeTracksOpenAndClose(t *testing.T) {
	m := &Metrics{}

	m.RecordConnectionOpened()
	m.RecordConnectionOpened()
	m.RecordConnectionClosed()

	if got := m.OpenConnections.Load(); got != 1 {
		t.Fatalf("expected 1 open connection, got %d", got)
	}
}

func TestRequestLifecycleCounters(t *testing.T) {
	m := &Metrics{}

	m.RequestStarted()
	if got := m.ActiveRequests.Load(); got != 1 {
		t.Fatalf("expected 1 active request, got %d", got)
	}

	m.RequestFinished(42, true, false, "example.com:443", 200)

	if got := m.ActiveRequests.Load(); got != 0 {
		t.Fatalf("expected 0 active requests after finish, got %d", got)
	}
	if got := m.RequestsTotal.Load(); got != 1 {
		t.Fatalf("expected 1 total request, got %d", got)
	}
	if got := m.RequestsSucceeded.Load(); got != 1 {
		t.Fatalf("expected 1 succeeded request, got %d", got)
	}
}

func TestMinMaxLatencyTracking(t *testing.T) {
	m := &Metrics{}
	m.MinLatencyMs.Store(int64(^uint64(0) >> 1))

	m.RequestFinished(100, true, false, "a", 200)
	m.RequestFinished(20, true, false, "a", 200)
	m.RequestFinished(500, false, true, "a", 503)

	if got := m.MinLatencyMs.Load(); got != 20 {
		t.Fatalf("expected min 20, got %d", got)
	}
	if got := m.MaxLatencyMs.Load(); got != 500 {
		t.Fatalf("expected max 500, got %d", got)
	}
	if got := m.RequestsRetried.Load(); got != 1 {
		t.Fatalf("expected 1 retried, got %d", got)
	}
}

func TestSnapshotKeys(t *testing.T) {
	m := &Metrics{}
	snap := m.Snapshot()
	for _, key := range []string{"open_connections", "active_requests", "address_errors", "connect_errors", "requests_total"} {
		if _, ok := snap[key]; !ok {
			t.Fatalf("expected snapshot to contain %q", key)
		}
	}
}
