package metricrouter

import (
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestSDKRouterReusesMeterByName(t *testing.T) {
	r := NewSDKRouter(sdkmetric.NewManualReader())
	a := r.GetOrCreateMeter("http.client")
	b := r.GetOrCreateMeter("http.client")
	if a != b {
		t.Fatalf("expected the same meter instance for the same name")
	}
}

func TestSDKRouterRejectsViewAfterMeterCreated(t *testing.T) {
	r := NewSDKRouter(sdkmetric.NewManualReader())
	r.GetOrCreateMeter("http.client")

	err := r.CreateViewForInstrument("http.client.request.duration", sdkmetric.AggregationDrop{})
	if err != ErrViewsFrozen {
		t.Fatalf("expected ErrViewsFrozen, got %v", err)
	}
}

func TestSDKRouterAppliesViewRegisteredBeforeFirstMeter(t *testing.T) {
	r := NewSDKRouter(sdkmetric.NewManualReader())
	if err := r.CreateViewForInstrument("http.client.request.duration", sdkmetric.AggregationDrop{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Should not error, and should build the provider with the view applied.
	r.GetOrCreateMeter("http.client")
}

func TestInMemoryRouterRecordsRequestedViews(t *testing.T) {
	r := NewInMemoryRouter()
	if err := r.CreateViewForInstrument("http.client.active_requests", sdkmetric.AggregationSum{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.RequestedView("http.client.open_connections"); ok {
		t.Fatalf("expected no view recorded for an unrequested instrument")
	}
	if _, ok := r.RequestedView("http.client.active_requests"); !ok {
		t.Fatalf("expected the requested view to be recorded")
	}
}

func TestInMemoryRouterReusesMeterByName(t *testing.T) {
	r := NewInMemoryRouter()
	a := r.GetOrCreateMeter("m")
	b := r.GetOrCreateMeter("m")
	if a != b {
		t.Fatalf("expected the same meter instance for the same name")
	}
}
