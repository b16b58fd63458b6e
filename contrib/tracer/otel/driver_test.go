package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

func setupDriver(t *testing.T) (*Driver, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return NewDriverFromProvider(tp, "relay-test"), recorder
}

func TestStartSpan(t *testing.T) {
	t.Run("maps kind and attributes", func(t *testing.T) {
		d, recorder := setupDriver(t)

		_, span := d.StartSpan(context.Background(), "publish orders",
			contracts.WithSpanKind(contracts.SpanKindProducer),
			contracts.WithAttributes(
				contracts.Attr(contracts.AttrMessagingDestination, "orders"),
				contracts.Attr("messaging.batch_size", 3),
			),
		)
		span.SetStatus(contracts.SpanStatusOK, "")
		span.End()

		ended := recorder.Ended()
		if len(ended) != 1 {
			t.Fatalf("expected 1 span, got %d", len(ended))
		}
		s := ended[0]
		if s.Name() != "publish orders" {
			t.Errorf("unexpected name: %s", s.Name())
		}
		if s.SpanKind() != trace.SpanKindProducer {
			t.Errorf("expected producer kind, got %v", s.SpanKind())
		}
		if s.Status().Code != codes.Ok {
			t.Errorf("expected OK status, got %v", s.Status().Code)
		}

		attrs := s.Attributes()
		var dest string
		var batch int64
		for _, a := range attrs {
			switch a.Key {
			case attribute.Key(contracts.AttrMessagingDestination):
				dest = a.Value.AsString()
			case attribute.Key("messaging.batch_size"):
				batch = a.Value.AsInt64()
			}
		}
		if dest != "orders" || batch != 3 {
			t.Errorf("attributes lost: %v", attrs)
		}
	})

	t.Run("records errors", func(t *testing.T) {
		d, recorder := setupDriver(t)

		_, span := d.StartSpan(context.Background(), "publish orders")
		span.RecordError(errors.New("broker unreachable"))
		span.SetStatus(contracts.SpanStatusError, "broker unreachable")
		span.End()

		s := recorder.Ended()[0]
		if s.Status().Code != codes.Error || s.Status().Description != "broker unreachable" {
			t.Errorf("unexpected status: %+v", s.Status())
		}
		if len(s.Events()) != 1 {
			t.Errorf("expected 1 error event, got %d", len(s.Events()))
		}
	})

	t.Run("exposes the span context", func(t *testing.T) {
		d, _ := setupDriver(t)

		_, span := d.StartSpan(context.Background(), "publish orders")
		defer span.End()

		sc := span.SpanContext()
		if !sc.IsValid() {
			t.Fatalf("invalid span context: %+v", sc)
		}
		if len(sc.TraceID) != 32 || len(sc.SpanID) != 16 {
			t.Errorf("ids should be hex encoded: %+v", sc)
		}
	})
}

func TestInjectExtract(t *testing.T) {
	d, recorder := setupDriver(t)

	ctx, span := d.StartSpan(context.Background(), "publish orders",
		contracts.WithSpanKind(contracts.SpanKindProducer))

	carrier := contracts.MapCarrier{}
	if err := d.Inject(ctx, carrier); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	span.End()

	if carrier.Get("traceparent") == "" {
		t.Fatal("traceparent header should be injected")
	}

	// The consumer side continues the trace from the carrier alone.
	consumeCtx := d.Extract(context.Background(), carrier)
	_, consumeSpan := d.StartSpan(consumeCtx, "consume orders",
		contracts.WithSpanKind(contracts.SpanKindConsumer))
	consumeSpan.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].SpanContext().TraceID() != ended[1].SpanContext().TraceID() {
		t.Error("consume span should continue the producer's trace")
	}
	if !ended[1].Parent().IsRemote() {
		t.Error("extracted parent should be remote")
	}
}
