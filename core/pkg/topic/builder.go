package topic

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/madcok-co/relay/core/pkg/codec"
	"github.com/madcok-co/relay/core/pkg/pipeline"
)

var validate = validator.New()

// Builder collects configuration for one message type. Obtain it via
// Define, finish with Build. Builders are startup-time only and not
// safe for concurrent use.
type Builder[T any] struct {
	model *Model
	cfg   Config[T]
	err   error
}

// Define starts configuring a topic for T on the model.
func Define[T any](m *Model) *Builder[T] {
	tag := codec.TypeTag[T]()
	return &Builder[T]{
		model: m,
		cfg: Config[T]{
			name: tag,
			tag:  tag,
			producer: ProducerSettings{
				ForgetTimeout: 5 * time.Second,
			},
			consumer: ConsumerSettings{
				Backpressure: DefaultBackpressure(),
			},
		},
	}
}

// Named overrides the broker topic name.
func (b *Builder[T]) Named(name string) *Builder[T] {
	if name == "" {
		b.fail("topic name must not be empty")
		return b
	}
	b.cfg.name = name
	return b
}

// KeyFunc sets the partition key extractor.
func (b *Builder[T]) KeyFunc(fn func(*T) string) *Builder[T] {
	b.cfg.key = fn
	return b
}

// Header adds an ordered header projection.
func (b *Builder[T]) Header(name string, fn func(*T) string) *Builder[T] {
	b.cfg.headers = append(b.cfg.headers, HeaderProjection[T]{Name: name, Value: fn})
	return b
}

// WithCodec overrides the default JSON codec.
func (b *Builder[T]) WithCodec(c codec.Codec[T]) *Builder[T] {
	b.cfg.codec = c
	return b
}

// Outbox selects the outbox strategy.
func (b *Builder[T]) Outbox(mode OutboxMode) *Builder[T] {
	b.cfg.producer.Outbox = mode
	return b
}

// FireForget publishes without awaiting acks, bypassing the outbox.
func (b *Builder[T]) FireForget() *Builder[T] {
	b.cfg.producer.Forget = FireForget
	return b
}

// AwaitForget publishes, waits up to timeout for the ack, and drops the
// outcome either way.
func (b *Builder[T]) AwaitForget(timeout time.Duration) *Builder[T] {
	b.cfg.producer.Forget = AwaitForget
	b.cfg.producer.ForgetTimeout = timeout
	return b
}

// Retry enables the retry stage.
func (b *Builder[T]) Retry(maxAttempts int, initial, max time.Duration) *Builder[T] {
	b.cfg.producer.Retry = pipeline.RetrySettings{
		Enabled:        true,
		MaxAttempts:    maxAttempts,
		InitialBackoff: initial,
		MaxBackoff:     max,
	}
	return b
}

// Breaker enables the circuit-breaker stage with defaults.
func (b *Builder[T]) Breaker() *Builder[T] {
	b.cfg.producer.Breaker = pipeline.DefaultBreakerSettings()
	return b
}

// BreakerSettings enables the circuit-breaker stage with explicit settings.
func (b *Builder[T]) BreakerSettings(s pipeline.BreakerSettings) *Builder[T] {
	s.Enabled = true
	b.cfg.producer.Breaker = s
	return b
}

// Throttle enables the rate-limit stage.
func (b *Builder[T]) Throttle(perSecond float64, burst int) *Builder[T] {
	b.cfg.producer.Throttle = pipeline.ThrottleSettings{Enabled: true, Rate: perSecond, Burst: burst}
	return b
}

// Batch enables publish batching.
func (b *Builder[T]) Batch(size int, flushInterval time.Duration) *Builder[T] {
	b.cfg.producer.Batch = pipeline.BatchSettings{Enabled: true, Size: size, FlushInterval: flushInterval}
	return b
}

// Compress enables brotli payload compression.
func (b *Builder[T]) Compress(level, minSize int) *Builder[T] {
	b.cfg.producer.Compress = pipeline.CompressSettings{Enabled: true, Level: level, MinSize: minSize}
	return b
}

// Group sets the consumer group id.
func (b *Builder[T]) Group(group string) *Builder[T] {
	b.cfg.consumer.Group = group
	return b
}

// Filter requires an exact header match for delivery. Filters combine
// with AND.
func (b *Builder[T]) Filter(name, value string) *Builder[T] {
	b.cfg.consumer.Filters = append(b.cfg.consumer.Filters, HeaderFilter{Name: name, Value: value})
	return b
}

// Inbox enables idempotent consumption. dedup extracts the value whose
// bytes, salted by the type tag, form the fingerprint.
func (b *Builder[T]) Inbox(dedup func(*T) string) *Builder[T] {
	if dedup == nil {
		b.fail("inbox dedup expression must not be nil")
		return b
	}
	b.cfg.consumer.InboxEnabled = true
	b.cfg.dedup = dedup
	return b
}

// Backpressure overrides the consumer buffer bounds.
func (b *Builder[T]) Backpressure(s BackpressureSettings) *Builder[T] {
	b.cfg.consumer.Backpressure = s
	return b
}

// ProduceStage appends a user middleware to the produce chain, between
// trace injection and the retry stage.
func (b *Builder[T]) ProduceStage(m pipeline.Middleware[T]) *Builder[T] {
	b.cfg.produceStages = append(b.cfg.produceStages, m)
	return b
}

// ConsumeStage appends a user middleware to the consume chain, between
// the inbox stage and the handler.
func (b *Builder[T]) ConsumeStage(m pipeline.Middleware[T]) *Builder[T] {
	b.cfg.consumeStages = append(b.cfg.consumeStages, m)
	return b
}

func (b *Builder[T]) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("topic %q: "+format, append([]any{b.cfg.name}, args...)...)
	}
}

// Build validates the configuration, seals it, and registers it on the
// model. The returned Config is immutable.
func (b *Builder[T]) Build() (*Config[T], error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.cfg.producer.Outbox != OutboxNone && b.cfg.producer.Forget != ForgetNone {
		return nil, fmt.Errorf("topic %q: outbox and forget strategies are mutually exclusive", b.cfg.name)
	}
	if b.cfg.codec == nil {
		b.cfg.codec = codec.JSON[T]()
	}

	if err := validate.Struct(b.cfg.producer); err != nil {
		return nil, fmt.Errorf("topic %q: producer settings: %w", b.cfg.name, err)
	}
	bp := b.cfg.consumer.Backpressure
	if err := validate.Struct(bp); err != nil {
		return nil, fmt.Errorf("topic %q: backpressure settings: %w", b.cfg.name, err)
	}

	cfg := b.cfg
	if err := register(b.model, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustBuild is Build panicking on error, for startup wiring.
func (b *Builder[T]) MustBuild() *Config[T] {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}
