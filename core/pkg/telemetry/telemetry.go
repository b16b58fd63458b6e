// Package telemetry bundles the observability surface the runtime
// components share: structured logging, metrics, and trace propagation
// over message headers.
package telemetry

import (
	"context"
	"strconv"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/envelope"
	"github.com/madcok-co/relay/core/pkg/pipeline"
)

// Diagnostics is constructor-injected into every runtime component.
// Any field may be nil; accessors fall back to no-ops so call sites
// stay unconditional.
type Diagnostics struct {
	logger  contracts.Logger
	metrics contracts.Metrics
	tracer  contracts.Tracer
	helper  *contracts.TracingHelper
}

// NewDiagnostics bundles the drivers. Pass nil for surfaces not wired.
func NewDiagnostics(logger contracts.Logger, metrics contracts.Metrics, tracer contracts.Tracer) *Diagnostics {
	d := &Diagnostics{logger: logger, metrics: metrics, tracer: tracer}
	if tracer != nil {
		d.helper = contracts.NewTracingHelper(tracer)
	}
	return d
}

// Logger returns the logger, never nil.
func (d *Diagnostics) Logger() contracts.Logger {
	if d == nil || d.logger == nil {
		return nopLogger{}
	}
	return d.logger
}

// Counter returns the named counter, never nil.
func (d *Diagnostics) Counter(name string, tags ...contracts.Tag) contracts.Counter {
	if d == nil || d.metrics == nil {
		return nopInstrument{}
	}
	return d.metrics.Counter(name, tags...)
}

// Gauge returns the named gauge, never nil.
func (d *Diagnostics) Gauge(name string, tags ...contracts.Tag) contracts.Gauge {
	if d == nil || d.metrics == nil {
		return nopInstrument{}
	}
	return d.metrics.Gauge(name, tags...)
}

// Histogram returns the named histogram, never nil.
func (d *Diagnostics) Histogram(name string, tags ...contracts.Tag) contracts.Histogram {
	if d == nil || d.metrics == nil {
		return nopInstrument{}
	}
	return d.metrics.Histogram(name, tags...)
}

// Metrics returns the raw metrics driver, may be nil.
func (d *Diagnostics) Metrics() contracts.Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// Tracer returns the raw tracer, may be nil.
func (d *Diagnostics) Tracer() contracts.Tracer {
	if d == nil {
		return nil
	}
	return d.tracer
}

// ProduceSpan wraps the publish chain of one topic. It opens a producer
// span, injects the trace context into the envelope headers so the
// consumer can continue the trace, and counts messages.produced on
// success.
func ProduceSpan[T any](d *Diagnostics, topic string) pipeline.Middleware[T] {
	produced := d.Counter(contracts.MetricMessagesProduced, contracts.T(contracts.TagTopic, topic))

	return func(next pipeline.Handler[T]) pipeline.Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			if d == nil || d.helper == nil {
				if err := next(ctx, env); err != nil {
					return err
				}
				produced.Inc()
				return nil
			}

			ctx, span := d.helper.TraceProduce(ctx, topic)
			defer span.End()

			if err := d.tracer.Inject(ctx, env.Headers); err != nil {
				span.RecordError(err)
			}
			span.SetAttributes(
				contracts.Attr(contracts.AttrMessagingKey, env.Key),
				contracts.Attr(contracts.AttrMessagingPayloadSize, len(env.Payload)),
			)

			if err := next(ctx, env); err != nil {
				span.RecordError(err)
				span.SetStatus(contracts.SpanStatusError, err.Error())
				return err
			}
			if env.Partition >= 0 {
				span.SetAttributes(contracts.Attr(contracts.AttrMessagingPartition, strconv.Itoa(int(env.Partition))))
			}
			span.SetStatus(contracts.SpanStatusOK, "")
			produced.Inc()
			return nil
		}
	}
}

// ConsumeSpan wraps the delivery chain of one topic. It extracts the
// remote trace context from the headers, parents a consumer span on it,
// and counts messages.consumed on success.
func ConsumeSpan[T any](d *Diagnostics, topic, group string) pipeline.Middleware[T] {
	consumed := d.Counter(contracts.MetricMessagesConsumed,
		contracts.T(contracts.TagTopic, topic),
		contracts.T(contracts.TagGroup, group),
	)

	return func(next pipeline.Handler[T]) pipeline.Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			if d == nil || d.helper == nil {
				if err := next(ctx, env); err != nil {
					return err
				}
				consumed.Inc()
				return nil
			}

			ctx = d.tracer.Extract(ctx, env.Headers)
			ctx, span := d.helper.TraceConsume(ctx, topic)
			defer span.End()

			span.SetAttributes(
				contracts.Attr(contracts.AttrMessagingConsumerGroup, group),
				contracts.Attr(contracts.AttrMessagingPartition, strconv.Itoa(int(env.Partition))),
			)

			if err := next(ctx, env); err != nil {
				span.RecordError(err)
				span.SetStatus(contracts.SpanStatusError, err.Error())
				return err
			}
			span.SetStatus(contracts.SpanStatusOK, "")
			consumed.Inc()
			return nil
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}
func (nopLogger) WithContext(context.Context) contracts.Logger { return nopLogger{} }
func (nopLogger) WithFields(...any) contracts.Logger           { return nopLogger{} }
func (nopLogger) WithError(error) contracts.Logger             { return nopLogger{} }
func (nopLogger) Named(string) contracts.Logger                { return nopLogger{} }
func (nopLogger) Sync() error                                  { return nil }

type nopInstrument struct{}

func (nopInstrument) Inc()            {}
func (nopInstrument) Dec()            {}
func (nopInstrument) Add(float64)     {}
func (nopInstrument) Sub(float64)     {}
func (nopInstrument) Set(float64)     {}
func (nopInstrument) Observe(float64) {}
