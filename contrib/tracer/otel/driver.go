// Package otel provides an OpenTelemetry implementation of the relay
// tracer driver interface. Trace context crosses the broker as W3C
// traceparent headers through the standard TraceContext propagator.
//
// Usage:
//
//	import (
//	    "go.opentelemetry.io/otel"
//	    relayotel "github.com/madcok-co/relay/contrib/tracer/otel"
//	    "github.com/madcok-co/relay/core/pkg/adapters/tracer"
//	)
//
//	driver := relayotel.NewDriverFromProvider(otel.GetTracerProvider(), "my-service")
//	adapter := tracer.New(driver)
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	adapter "github.com/madcok-co/relay/core/pkg/adapters/tracer"
	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Driver implements the tracer driver interface over OpenTelemetry
type Driver struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewDriver creates a driver from a tracer and propagator
func NewDriver(tracer trace.Tracer, propagator propagation.TextMapPropagator) *Driver {
	if propagator == nil {
		propagator = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		)
	}
	return &Driver{tracer: tracer, propagator: propagator}
}

// NewDriverFromProvider creates a driver with the default W3C propagator
func NewDriverFromProvider(tp trace.TracerProvider, name string) *Driver {
	return NewDriver(tp.Tracer(name), nil)
}

// StartSpan starts an OpenTelemetry span
func (d *Driver) StartSpan(ctx context.Context, name string, opts ...contracts.SpanOption) (context.Context, adapter.SpanDriver) {
	cfg := &contracts.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(toOTelKind(cfg.Kind)),
	}
	if len(cfg.Attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(toOTelAttrs(cfg.Attributes)...))
	}
	if !cfg.StartTime.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(cfg.StartTime))
	}

	newCtx, span := d.tracer.Start(ctx, name, startOpts...)
	return newCtx, &spanDriver{span: span}
}

// Extract reads trace context from the carrier
func (d *Driver) Extract(ctx context.Context, carrier contracts.Carrier) context.Context {
	return d.propagator.Extract(ctx, textMapCarrier{carrier})
}

// Inject writes trace context into the carrier
func (d *Driver) Inject(ctx context.Context, carrier contracts.Carrier) error {
	d.propagator.Inject(ctx, textMapCarrier{carrier})
	return nil
}

// Close is a no-op; flushing belongs to the SDK's TracerProvider
func (d *Driver) Close() error {
	return nil
}

// textMapCarrier bridges contracts.Carrier to the otel propagation
// carrier, which has the same method set.
type textMapCarrier struct {
	c contracts.Carrier
}

func (t textMapCarrier) Get(key string) string { return t.c.Get(key) }
func (t textMapCarrier) Set(key, value string) { t.c.Set(key, value) }
func (t textMapCarrier) Keys() []string        { return t.c.Keys() }

var _ propagation.TextMapCarrier = textMapCarrier{}

// spanDriver wraps an otel span
type spanDriver struct {
	span trace.Span
}

func (s *spanDriver) End() {
	s.span.End()
}

func (s *spanDriver) SetName(name string) {
	s.span.SetName(name)
}

func (s *spanDriver) SetStatus(code contracts.SpanStatus, message string) {
	switch code {
	case contracts.SpanStatusOK:
		s.span.SetStatus(codes.Ok, message)
	case contracts.SpanStatusError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

func (s *spanDriver) SetAttributes(attrs ...contracts.Attribute) {
	s.span.SetAttributes(toOTelAttrs(attrs)...)
}

func (s *spanDriver) AddEvent(name string, attrs ...contracts.Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toOTelAttrs(attrs)...))
}

func (s *spanDriver) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *spanDriver) SpanContext() contracts.SpanContext {
	sc := s.span.SpanContext()
	return contracts.SpanContext{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
		Remote:     sc.IsRemote(),
	}
}

func (s *spanDriver) IsRecording() bool {
	return s.span.IsRecording()
}

func toOTelKind(kind contracts.SpanKind) trace.SpanKind {
	switch kind {
	case contracts.SpanKindProducer:
		return trace.SpanKindProducer
	case contracts.SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

func toOTelAttrs(attrs []contracts.Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, toOTelAttr(a))
	}
	return out
}

func toOTelAttr(a contracts.Attribute) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	default:
		return attribute.String(a.Key, fmt.Sprint(v))
	}
}

// Ensure Driver implements the adapter driver interface
var _ adapter.Driver = (*Driver)(nil)
