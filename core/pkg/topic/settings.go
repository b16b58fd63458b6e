package topic

import (
	"time"

	"github.com/madcok-co/relay/core/pkg/pipeline"
)

// OutboxMode selects how produced messages reach the broker.
type OutboxMode int

const (
	// OutboxNone publishes directly, no durable row.
	OutboxNone OutboxMode = iota

	// OutboxBackgroundOnly persists a row in the caller's transaction;
	// only the polling worker publishes it.
	OutboxBackgroundOnly

	// OutboxImmediateWithFallback persists a row, then attempts a
	// direct publish after commit; on success the row is deleted, on
	// failure the worker retries it.
	OutboxImmediateWithFallback
)

// ForgetMode selects fire-and-forget publishing. Mutually exclusive
// with an outbox mode.
type ForgetMode int

const (
	ForgetNone ForgetMode = iota

	// FireForget publishes asynchronously without awaiting the ack.
	FireForget

	// AwaitForget publishes and waits up to ForgetTimeout for the ack,
	// dropping the outcome either way.
	AwaitForget
)

// ProducerSettings configures the produce path of one topic.
type ProducerSettings struct {
	Outbox        OutboxMode
	Forget        ForgetMode
	ForgetTimeout time.Duration `mapstructure:"forget_timeout" validate:"omitempty,gt=0"`

	Retry    pipeline.RetrySettings
	Breaker  pipeline.BreakerSettings
	Throttle pipeline.ThrottleSettings
	Batch    pipeline.BatchSettings
	Compress pipeline.CompressSettings
}

// BackpressureMode selects buffer behavior when consumers lag.
type BackpressureMode int

const (
	// ApplyBackpressure pauses the fetcher at the high watermark and
	// resumes below the low watermark.
	ApplyBackpressure BackpressureMode = iota

	// DropOldest evicts the oldest buffered message to admit new ones.
	DropOldest
)

// BackpressureSettings bounds the consumer buffer.
type BackpressureSettings struct {
	Mode BackpressureMode

	// Buffer is the channel capacity (MaxBufferedMessages).
	Buffer int `mapstructure:"buffer" validate:"gte=1"`

	HighWaterRatio float64 `mapstructure:"high_water_ratio" validate:"gt=0,lte=1"`
	LowWaterRatio  float64 `mapstructure:"low_water_ratio" validate:"gte=0,ltefield=HighWaterRatio"`
}

// DefaultBackpressure returns the default bounds.
func DefaultBackpressure() BackpressureSettings {
	return BackpressureSettings{
		Mode:           ApplyBackpressure,
		Buffer:         1000,
		HighWaterRatio: 0.8,
		LowWaterRatio:  0.5,
	}
}

// HeaderFilter requires a header to hold an exact value. All filters of
// a consumer must match (AND) for delivery.
type HeaderFilter struct {
	Name  string `validate:"required"`
	Value string
}

// ConsumerSettings configures the consume path of one topic.
type ConsumerSettings struct {
	Group        string `mapstructure:"group" validate:"required"`
	Filters      []HeaderFilter
	InboxEnabled bool
	Backpressure BackpressureSettings
}
