// Package metricrouter declares the MetricRouter collaborator the
// client uses to obtain named OpenTelemetry meters and register
// aggregation views for their instruments, generalized from the
// teacher's internal/observability OTel wiring (which hard-codes a
// single global meter) into a per-component router a caller can
// inject.
package metricrouter

import (
	"errors"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Router resolves a named Meter and lets a caller install an
// aggregation view for one of its instruments before that instrument
// is first used.
type Router interface {
	GetOrCreateMeter(name string) metric.Meter
	CreateViewForInstrument(instrumentName string, aggregation sdkmetric.Aggregation) error
}

// ErrViewsFrozen is returned by CreateViewForInstrument once a meter
// has already been created: the OpenTelemetry SDK only applies views
// at MeterProvider construction time, so a view registered afterward
// would silently not apply to anything already in flight.
var ErrViewsFrozen = errors.New("metricrouter: views must be registered before the first meter is created")

// SDKRouter is the production Router: it lazily builds one
// sdkmetric.MeterProvider over a caller-supplied Reader (cmd/pbsclient
// and the tests both pass a manual reader), applying every
// view registered before the first GetOrCreateMeter call.
type SDKRouter struct {
	mu       sync.Mutex
	reader   sdkmetric.Reader
	provider *sdkmetric.MeterProvider
	views    []sdkmetric.View
	meters   map[string]metric.Meter
}

// NewSDKRouter constructs an SDKRouter over reader.
func NewSDKRouter(reader sdkmetric.Reader) *SDKRouter {
	return &SDKRouter{
		reader: reader,
		meters: make(map[string]metric.Meter),
	}
}

// CreateViewForInstrument registers an aggregation override for
// instrumentName. Must be called before the first GetOrCreateMeter.
func (r *SDKRouter) CreateViewForInstrument(instrumentName string, aggregation sdkmetric.Aggregation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.provider != nil {
		return ErrViewsFrozen
	}
	r.views = append(r.views, sdkmetric.NewView(
		sdkmetric.Instrument{Name: instrumentName},
		sdkmetric.Stream{Aggregation: aggregation},
	))
	return nil
}

// GetOrCreateMeter returns the Meter for name, building the underlying
// MeterProvider (with every registered view applied) on first use.
func (r *SDKRouter) GetOrCreateMeter(name string) metric.Meter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.provider == nil {
		opts := make([]sdkmetric.Option, 0, len(r.views)+1)
		opts = append(opts, sdkmetric.WithReader(r.reader))
		for _, v := range r.views {
			opts = append(opts, sdkmetric.WithView(v))
		}
		r.provider = sdkmetric.NewMeterProvider(opts...)
	}

	if m, ok := r.meters[name]; ok {
		return m
	}
	m := r.provider.Meter(name)
	r.meters[name] = m
	return m
}

// InMemoryRouter is a dependency-free test double, grounded on the
// original's in_memory_metric_router mock: it hands out no-op meters
// (no aggregation actually happens) and simply records which views
// were requested, for assertions in tests that only care about
// "was a view registered for X".
type InMemoryRouter struct {
	mu            sync.Mutex
	meters        map[string]metric.Meter
	requestedViews map[string]sdkmetric.Aggregation
}

// NewInMemoryRouter constructs an InMemoryRouter.
func NewInMemoryRouter() *InMemoryRouter {
	return &InMemoryRouter{
		meters:         make(map[string]metric.Meter),
		requestedViews: make(map[string]sdkmetric.Aggregation),
	}
}

func (r *InMemoryRouter) GetOrCreateMeter(name string) metric.Meter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meters[name]; ok {
		return m
	}
	m := noop.NewMeterProvider().Meter(name)
	r.meters[name] = m
	return m
}

func (r *InMemoryRouter) CreateViewForInstrument(instrumentName string, aggregation sdkmetric.Aggregation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestedViews[instrumentName] = aggregation
	return nil
}

// RequestedView reports the aggregation last registered for
// instrumentName, for test assertions.
func (r *InMemoryRouter) RequestedView(instrumentName string) (sdkmetric.Aggregation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.requestedViews[instrumentName]
	return agg, ok
}
