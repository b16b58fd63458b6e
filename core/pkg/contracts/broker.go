package contracts

import (
	"context"
	"time"
)

// Broker adalah generic interface untuk message broker
// Implementasi bisa Kafka, Redpanda, atau in-memory untuk testing
type Broker interface {
	// Publishing
	Publish(ctx context.Context, topic string, msg *BrokerMessage) error
	PublishBatch(ctx context.Context, topic string, msgs []*BrokerMessage) error

	// Subscribe joins a consumer group on a topic and returns a
	// Subscription owned by a single fetcher goroutine.
	Subscribe(ctx context.Context, group, topic string) (Subscription, error)

	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	IsConnected() bool

	// Info
	Name() string // "kafka", "memory", etc
}

// Subscription is a single consumer-group assignment on one topic.
// Fetch must only be called from one goroutine at a time.
type Subscription interface {
	// Fetch blocks until a message is available or ctx is cancelled.
	Fetch(ctx context.Context) (*BrokerMessage, error)

	// StoreOffset records the next offset to read for the message's
	// partition. It does not flush; flushing follows the broker
	// client's commit interval.
	StoreOffset(topic string, partition int32, offset int64)

	// Pause and Resume control broker-side fetching for backpressure.
	Pause()
	Resume()

	// Close releases the group assignment.
	Close() error
}

// BrokerMessage represents a message on the wire
type BrokerMessage struct {
	Topic string

	Key     []byte
	Value   []byte
	Headers []MessageHeader

	// Set by the broker on the consume path
	Partition   int32
	Offset      int64
	Timestamp   time.Time
	LeaderEpoch *int32
}

// MessageHeader is a single header. Order is preserved end to end.
type MessageHeader struct {
	Key   string
	Value string
}

// Header returns the value of the first header with the given key.
func (m *BrokerMessage) Header(key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// SetHeader appends or replaces a header, keeping insertion order.
func (m *BrokerMessage) SetHeader(key, value string) {
	for i, h := range m.Headers {
		if h.Key == key {
			m.Headers[i].Value = value
			return
		}
	}
	m.Headers = append(m.Headers, MessageHeader{Key: key, Value: value})
}

// Publisher is a simplified interface for only publishing
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *BrokerMessage) error
	PublishBatch(ctx context.Context, topic string, msgs []*BrokerMessage) error
}
