package contracts

import (
	"context"
	"time"
)

// Tracer adalah generic interface untuk distributed tracing
// Implementasi bisa OpenTelemetry, Jaeger, Zipkin, dll
type Tracer interface {
	// Start starts a new span
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Extract extracts span context from carrier (consume path)
	Extract(ctx context.Context, carrier Carrier) context.Context

	// Inject injects span context into carrier (produce path)
	Inject(ctx context.Context, carrier Carrier) error

	// Close flushes and closes the tracer
	Close() error
}

// Span represents a unit of work in a trace
type Span interface {
	// End finishes the span
	End()

	// SetName sets/overrides the span name
	SetName(name string)

	// SetStatus sets the span status
	SetStatus(code SpanStatus, message string)

	// SetAttributes sets span attributes
	SetAttributes(attrs ...Attribute)

	// AddEvent adds an event to the span
	AddEvent(name string, attrs ...Attribute)

	// RecordError records an error on the span
	RecordError(err error)

	// SpanContext returns the span context
	SpanContext() SpanContext

	// IsRecording returns true if the span is recording
	IsRecording() bool
}

// SpanContext contains identifying trace information
type SpanContext struct {
	TraceID    string
	SpanID     string
	TraceFlags byte
	TraceState string
	Remote     bool
}

// IsValid returns true if the span context is valid
func (sc SpanContext) IsValid() bool {
	return sc.TraceID != "" && sc.SpanID != ""
}

// SpanStatus represents the status of a span
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// Attribute untuk span attributes
type Attribute struct {
	Key   string
	Value any
}

// Attr adalah shortcut untuk membuat Attribute
func Attr(key string, value any) Attribute {
	return Attribute{Key: key, Value: value}
}

// SpanOption untuk konfigurasi span
type SpanOption func(*SpanConfig)

// SpanConfig untuk span configuration
type SpanConfig struct {
	Kind       SpanKind
	Attributes []Attribute
	StartTime  time.Time
}

// SpanKind represents the span kind
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindProducer
	SpanKindConsumer
)

// Carrier untuk context propagation
type Carrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// MapCarrier implements Carrier untuk map[string]string
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// ============ Span Options ============

// WithSpanKind sets the span kind
func WithSpanKind(kind SpanKind) SpanOption {
	return func(cfg *SpanConfig) {
		cfg.Kind = kind
	}
}

// WithAttributes sets span attributes
func WithAttributes(attrs ...Attribute) SpanOption {
	return func(cfg *SpanConfig) {
		cfg.Attributes = append(cfg.Attributes, attrs...)
	}
}

// WithStartTime sets the span start time
func WithStartTime(t time.Time) SpanOption {
	return func(cfg *SpanConfig) {
		cfg.StartTime = t
	}
}

// ============ Pre-defined Attribute Keys ============

const (
	// Messaging attributes
	AttrMessagingSystem        = "messaging.system"
	AttrMessagingDestination   = "messaging.destination"
	AttrMessagingOperation     = "messaging.operation"
	AttrMessagingKey           = "messaging.kafka.message_key"
	AttrMessagingPartition     = "messaging.kafka.partition"
	AttrMessagingPayloadSize   = "messaging.message_payload_size_bytes"
	AttrMessagingConsumerGroup = "messaging.consumer.group"
)

// ============ Tracing Helper ============

// TracingHelper untuk common tracing patterns
type TracingHelper struct {
	tracer Tracer
}

// NewTracingHelper creates a new helper
func NewTracingHelper(t Tracer) *TracingHelper {
	return &TracingHelper{tracer: t}
}

// TraceProduce starts a span for a message publish
func (h *TracingHelper) TraceProduce(ctx context.Context, topic string) (context.Context, Span) {
	return h.tracer.Start(ctx, "publish "+topic,
		WithSpanKind(SpanKindProducer),
		WithAttributes(
			Attr(AttrMessagingDestination, topic),
			Attr(AttrMessagingOperation, "publish"),
		),
	)
}

// TraceConsume starts a span for a message consume
func (h *TracingHelper) TraceConsume(ctx context.Context, topic string) (context.Context, Span) {
	return h.tracer.Start(ctx, "consume "+topic,
		WithSpanKind(SpanKindConsumer),
		WithAttributes(
			Attr(AttrMessagingDestination, topic),
			Attr(AttrMessagingOperation, "consume"),
		),
	)
}
