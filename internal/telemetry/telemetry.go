// Package telemetry collects PBS client runtime observability data.
//
// # Design rationale
//
// Two metric stores coexist, mirroring the teacher's split (and the
// original's own dual Prometheus+OpenTelemetry telemetry design,
// cc/core/telemetry):
//
//  1. An in-process Metrics struct (atomic counters/gauges) cheap
//     enough to read on every connection-pool operation.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems, AND an OpenTelemetry meter for exporting the
//     same measurements via OTLP — both updated from the same call
//     sites so neither backend silently falls behind.
//
// # Concurrency — hot path
//
// RequestFinished and friends are called from the connection's
// response-completion path and must be fast: they use atomic
// increments/CAS for the in-process counters and hand off to the
// Prometheus/OTel client libraries, which are themselves safe for
// concurrent use.
package telemetry

import (
	"sync/atomic"
)

// Metrics collects the client's in-process counters and gauges.
type Metrics struct {
	OpenConnections atomic.Int64
	ActiveRequests  atomic.Int64
	AddressErrors   atomic.Int64
	ConnectErrors   atomic.Int64

	RequestsTotal      atomic.Int64
	RequestsSucceeded  atomic.Int64
	RequestsFailed     atomic.Int64
	RequestsRetried    atomic.Int64

	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64
}

var global = &Metrics{}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1))
}

// Global returns the process-wide Metrics instance.
func Global() *Metrics {
	return global
}

// RecordConnectionOpened increments the open-connections gauge.
func (m *Metrics) RecordConnectionOpened() {
	m.OpenConnections.Add(1)
	prometheusOpenConnections(1)
}

// RecordConnectionClosed decrements the open-connections gauge.
func (m *Metrics) RecordConnectionClosed() {
	m.OpenConnections.Add(-1)
	prometheusOpenConnections(-1)
}

// RecordConnectError increments the connect-error counter (fired from
// OnConnectionError).
func (m *Metrics) RecordConnectError() {
	m.ConnectErrors.Add(1)
	prometheusConnectErrors()
}

// RecordAddressError increments the address-error counter, labeled by
// the offending URI, for httpclient.ParseURI rejecting a URI.
func (m *Metrics) RecordAddressError(uri string) {
	m.AddressErrors.Add(1)
	prometheusAddressErrors(uri)
}

// RequestStarted increments the active-requests gauge.
func (m *Metrics) RequestStarted() {
	m.ActiveRequests.Add(1)
	prometheusActiveRequests(1)
}

// RequestFinished decrements the active-requests gauge and records the
// outcome and duration.
func (m *Metrics) RequestFinished(durationMs int64, succeeded bool, retried bool, serverAddress string, statusCode int) {
	m.ActiveRequests.Add(-1)
	m.RequestsTotal.Add(1)
	if succeeded {
		m.RequestsSucceeded.Add(1)
	} else {
		m.RequestsFailed.Add(1)
	}
	if retried {
		m.RequestsRetried.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	prometheusActiveRequests(-1)
	prometheusRequestDuration(serverAddress, statusCode, durationMs)
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

// Snapshot returns a point-in-time view of the counters for
// diagnostics/tests.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"open_connections": m.OpenConnections.Load(),
		"active_requests":  m.ActiveRequests.Load(),
		"address_errors":   m.AddressErrors.Load(),
		"connect_errors":   m.ConnectErrors.Load(),
		"requests_total":   m.RequestsTotal.Load(),
		"requests_success": m.RequestsSucceeded.Load(),
		"requests_failed":  m.RequestsFailed.Load(),
		"requests_retried": m.RequestsRetried.Load(),
	}
}
