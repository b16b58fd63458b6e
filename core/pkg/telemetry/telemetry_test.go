package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/madcok-co/relay/core/pkg/adapters/metrics"
	"github.com/madcok-co/relay/core/pkg/adapters/tracer"
	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/envelope"
	"github.com/madcok-co/relay/core/pkg/pipeline"
)

type Notification struct {
	UserID string `json:"user_id"`
}

func TestDiagnostics_NilSafety(t *testing.T) {
	var d *Diagnostics

	if d.Logger() == nil {
		t.Error("nil diagnostics should still yield a logger")
	}
	d.Logger().Info("no panic")
	d.Counter("x").Inc()
	d.Gauge("x").Set(1)
	d.Histogram("x").Observe(1)
	if d.Metrics() != nil || d.Tracer() != nil {
		t.Error("raw accessors should be nil on nil diagnostics")
	}
}

func TestProduceSpan(t *testing.T) {
	driver := tracer.NewMemoryDriver()
	metricsDriver := metrics.NewMemoryDriver()
	d := NewDiagnostics(nil, metrics.New(metricsDriver), tracer.New(driver))

	t.Run("injects trace context and counts", func(t *testing.T) {
		h := pipeline.Chain(pipeline.Drop[Notification](), ProduceSpan[Notification](d, "notifications"))

		env := envelope.From(&Notification{UserID: "u-1"})
		if err := h(context.Background(), env); err != nil {
			t.Fatalf("chain failed: %v", err)
		}

		tp := env.Headers.Get(envelope.HeaderTraceparent)
		if tp == "" {
			t.Fatal("traceparent header should be injected")
		}
		parts := strings.Split(tp, "-")
		if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 || len(parts[2]) != 16 {
			t.Errorf("malformed traceparent: %s", tp)
		}

		spans := driver.GetSpans()
		if len(spans) != 1 || spans[0].Name != "publish notifications" {
			t.Fatalf("unexpected spans: %+v", spans)
		}
		if spans[0].Status != contracts.SpanStatusOK {
			t.Errorf("expected OK status, got %v", spans[0].Status)
		}

		produced := metricsDriver.GetCounter(contracts.MetricMessagesProduced,
			contracts.T(contracts.TagTopic, "notifications"))
		if produced != 1 {
			t.Errorf("expected 1 produced, got %v", produced)
		}
	})

	t.Run("records failures without counting", func(t *testing.T) {
		driver.Clear()
		boom := errors.New("publish failed")
		h := pipeline.Chain(func(ctx context.Context, env *envelope.Envelope[Notification]) error {
			return boom
		}, ProduceSpan[Notification](d, "failing"))

		if err := h(context.Background(), envelope.From(&Notification{})); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		spans := driver.GetSpans()
		if len(spans) != 1 || spans[0].Status != contracts.SpanStatusError {
			t.Fatalf("expected an error span, got %+v", spans)
		}
		if metricsDriver.GetCounter(contracts.MetricMessagesProduced,
			contracts.T(contracts.TagTopic, "failing")) != 0 {
			t.Error("failed publishes must not count as produced")
		}
	})
}

func TestConsumeSpan(t *testing.T) {
	driver := tracer.NewMemoryDriver()
	metricsDriver := metrics.NewMemoryDriver()
	d := NewDiagnostics(nil, metrics.New(metricsDriver), tracer.New(driver))

	t.Run("continues the producer's trace", func(t *testing.T) {
		produce := pipeline.Chain(pipeline.Drop[Notification](), ProduceSpan[Notification](d, "notifications"))
		env := envelope.From(&Notification{UserID: "u-1"})
		if err := produce(context.Background(), env); err != nil {
			t.Fatalf("produce failed: %v", err)
		}
		produceTrace := driver.GetSpans()[0].TraceID

		consume := pipeline.Chain(pipeline.Drop[Notification](), ConsumeSpan[Notification](d, "notifications", "mailer"))
		if err := consume(context.Background(), env); err != nil {
			t.Fatalf("consume failed: %v", err)
		}

		spans := driver.GetSpans()
		var consumeSpan *tracer.MemorySpan
		for _, s := range spans {
			if s.Name == "consume notifications" {
				consumeSpan = s
			}
		}
		if consumeSpan == nil {
			t.Fatal("consume span not recorded")
		}
		if consumeSpan.TraceID != produceTrace {
			t.Errorf("consume span should continue the trace: %s vs %s", consumeSpan.TraceID, produceTrace)
		}

		consumed := metricsDriver.GetCounter(contracts.MetricMessagesConsumed,
			contracts.T(contracts.TagTopic, "notifications"),
			contracts.T(contracts.TagGroup, "mailer"))
		if consumed != 1 {
			t.Errorf("expected 1 consumed, got %v", consumed)
		}
	})

	t.Run("works without a tracer", func(t *testing.T) {
		plain := NewDiagnostics(nil, nil, nil)
		h := pipeline.Chain(pipeline.Drop[Notification](), ConsumeSpan[Notification](plain, "t", "g"))
		if err := h(context.Background(), envelope.From(&Notification{})); err != nil {
			t.Errorf("chain failed: %v", err)
		}
	})
}
