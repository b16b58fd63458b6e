// Package topic binds a message type to its broker topic, key and
// header projections, codec, and middleware settings. Configuration is
// built once by the fluent builder and immutable afterwards.
package topic

import (
	"github.com/madcok-co/relay/core/pkg/codec"
	"github.com/madcok-co/relay/core/pkg/pipeline"
)

// HeaderProjection extracts one header value from a message.
type HeaderProjection[T any] struct {
	Name  string
	Value func(*T) string
}

// Config is the sealed per-type configuration. Runtime components read
// it through accessors; there are no setters after Build.
type Config[T any] struct {
	name     string
	tag      string
	key      func(*T) string
	headers  []HeaderProjection[T]
	codec    codec.Codec[T]
	dedup    func(*T) string
	producer ProducerSettings
	consumer ConsumerSettings

	produceStages []pipeline.Middleware[T]
	consumeStages []pipeline.Middleware[T]
}

// Name returns the broker topic name (default: the type tag).
func (c *Config[T]) Name() string { return c.name }

// Tag returns the stable logical type tag carried in $type.
func (c *Config[T]) Tag() string { return c.tag }

// Key extracts the partition key, "" when no extractor is set.
func (c *Config[T]) Key(msg *T) string {
	if c.key == nil {
		return ""
	}
	return c.key(msg)
}

// Headers returns the ordered header projections.
func (c *Config[T]) Headers() []HeaderProjection[T] { return c.headers }

// Codec returns the serializer for this topic.
func (c *Config[T]) Codec() codec.Codec[T] { return c.codec }

// Dedup returns the inbox dedup expression, nil when the inbox is off.
func (c *Config[T]) Dedup() func(*T) string { return c.dedup }

// Producer returns the producer settings.
func (c *Config[T]) Producer() ProducerSettings { return c.producer }

// Consumer returns the consumer settings.
func (c *Config[T]) Consumer() ConsumerSettings { return c.consumer }

// ProduceStages returns user middleware for the produce chain.
func (c *Config[T]) ProduceStages() []pipeline.Middleware[T] { return c.produceStages }

// ConsumeStages returns user middleware for the consume chain.
func (c *Config[T]) ConsumeStages() []pipeline.Middleware[T] { return c.consumeStages }
