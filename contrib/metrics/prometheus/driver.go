// Package prometheus provides a Prometheus implementation of the relay
// metrics driver interface. Metric vectors are created lazily on first
// use and registered on the driver's own registry, so two relay engines
// in one process do not collide.
//
// Usage:
//
//	import (
//	    relayprom "github.com/madcok-co/relay/contrib/metrics/prometheus"
//	    "github.com/madcok-co/relay/core/pkg/adapters/metrics"
//	)
//
//	driver := relayprom.NewDriver(relayprom.DefaultConfig())
//	adapter := metrics.New(driver).WithNamespace("orders")
//	http.Handle("/metrics", driver.Handler().(http.Handler))
package prometheus

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adapter "github.com/madcok-co/relay/core/pkg/adapters/metrics"
	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Config holds Prometheus driver configuration
type Config struct {
	// Registry to register metrics on. A fresh one is created when nil.
	Registry *prometheus.Registry

	// DurationBuckets used for all histograms
	DurationBuckets []float64
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DurationBuckets: contracts.DefaultDurationBuckets,
	}
}

// Driver implements the metrics driver interface using Prometheus
type Driver struct {
	registry *prometheus.Registry
	buckets  []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewDriver creates a new Prometheus metrics driver
func NewDriver(cfg Config) *Driver {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = contracts.DefaultDurationBuckets
	}
	return &Driver{
		registry:   cfg.Registry,
		buckets:    cfg.DurationBuckets,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the underlying registry
func (d *Driver) Registry() *prometheus.Registry {
	return d.registry
}

func (d *Driver) Counter(name string, tags []contracts.Tag) adapter.CounterDriver {
	promName := sanitize(name)
	labels, values := splitTags(tags)

	d.mu.Lock()
	vec, ok := d.counters[promName]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName,
			Help: name,
		}, labels)
		d.registry.MustRegister(vec)
		d.counters[promName] = vec
	}
	d.mu.Unlock()

	return vec.WithLabelValues(values...)
}

func (d *Driver) Gauge(name string, tags []contracts.Tag) adapter.GaugeDriver {
	promName := sanitize(name)
	labels, values := splitTags(tags)

	d.mu.Lock()
	vec, ok := d.gauges[promName]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName,
			Help: name,
		}, labels)
		d.registry.MustRegister(vec)
		d.gauges[promName] = vec
	}
	d.mu.Unlock()

	return vec.WithLabelValues(values...)
}

func (d *Driver) Histogram(name string, tags []contracts.Tag) adapter.HistogramDriver {
	promName := sanitize(name)
	labels, values := splitTags(tags)

	d.mu.Lock()
	vec, ok := d.histograms[promName]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName,
			Help:    name,
			Buckets: d.buckets,
		}, labels)
		d.registry.MustRegister(vec)
		d.histograms[promName] = vec
	}
	d.mu.Unlock()

	return vec.WithLabelValues(values...)
}

// Handler returns an http.Handler serving the registry
func (d *Driver) Handler() any {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}

// Close is a no-op; the registry has nothing to flush
func (d *Driver) Close() error {
	return nil
}

// sanitize converts dotted relay metric names to Prometheus form.
// The first call for a name fixes its label set; relay tags a metric
// name consistently, so later calls always match.
func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func splitTags(tags []contracts.Tag) ([]string, []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	labels := make([]string, len(tags))
	values := make([]string, len(tags))
	for i, t := range tags {
		labels[i] = sanitize(t.Key)
		values[i] = t.Value
	}
	return labels, values
}

// Ensure Driver implements the adapter driver interface
var _ adapter.Driver = (*Driver)(nil)
