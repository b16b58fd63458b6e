package contracts

import "time"

// Metrics adalah generic interface untuk metrics collection
// Implementasi bisa Prometheus, OpenTelemetry, StatsD, dll
type Metrics interface {
	// Counter - nilai yang hanya naik (messages produced, duplicates)
	Counter(name string, tags ...Tag) Counter

	// Gauge - nilai yang bisa naik/turun (pending outbox rows)
	Gauge(name string, tags ...Tag) Gauge

	// Histogram - distribusi nilai (publish duration)
	Histogram(name string, tags ...Tag) Histogram

	// WithTags returns metrics with additional default tags
	WithTags(tags ...Tag) Metrics

	// Handler returns HTTP handler for metrics endpoint (e.g., /metrics)
	Handler() any

	// Close flushes and closes the metrics client
	Close() error
}

// Counter untuk counting events
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge untuk nilai yang bisa berubah
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Sub(delta float64)
}

// Histogram untuk distribusi nilai
type Histogram interface {
	Observe(value float64)
}

// Tag untuk labeling metrics
type Tag struct {
	Key   string
	Value string
}

// T adalah shortcut untuk membuat Tag
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// ============ Pre-defined Metric Names ============

const (
	MetricMessagesProduced       = "messages.produced"
	MetricMessagesConsumed       = "messages.consumed"
	MetricInboxDuplicates        = "inbox.duplicates_filtered"
	MetricConsumerDecodeErrors   = "consumer.decode_errors"
	MetricConsumerDropped        = "consumer.dropped"
	MetricOutboxPublishDuration  = "outbox.publish_duration"
	MetricOutboxPending          = "outbox.pending"
	MetricOutboxPublishErrors    = "outbox.publish_errors"
	MetricOutboxUnroutable       = "outbox.unroutable"
)

// ============ Common Tag Keys ============

const (
	TagTopic     = "topic"
	TagType      = "type"
	TagGroup     = "group"
	TagBroker    = "broker"
	TagErrorType = "error_type"
)

// DefaultDurationBuckets untuk publish/consume latency (in seconds)
var DefaultDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// MetricsConfig untuk konfigurasi metrics
type MetricsConfig struct {
	// Provider: prometheus, otlp, memory
	Provider string

	// Namespace/Prefix for all metrics
	Namespace string

	// Default tags applied to all metrics
	DefaultTags []Tag

	// Histogram buckets for duration metrics (in seconds)
	DurationBuckets []float64

	// Prometheus specific
	PrometheusPath string // default: /metrics
}

// ============ Timer helper ============

// Timed records the duration of fn into h.
func Timed(h Histogram, fn func()) {
	start := time.Now()
	fn()
	h.Observe(time.Since(start).Seconds())
}
