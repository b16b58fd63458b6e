// Package envelope carries a typed message through the middleware
// pipeline together with its wire form and broker coordinates.
package envelope

import (
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Framework-reserved header names.
const (
	HeaderType        = "$type"
	HeaderRuntimeType = "$runtimeType"
	HeaderCompression = "$compression"
	HeaderTraceparent = "traceparent"
	HeaderTracestate  = "tracestate"
)

// Envelope is the in-flight carrier around a message of type T.
//
// On the produce path Message is set first and Payload is filled by the
// serializer stage. On the consume path Payload arrives from the broker
// and Message stays nil until the deserializer stage runs.
type Envelope[T any] struct {
	Message *T
	Key     string
	Payload []byte
	Headers *Headers

	// Broker coordinates, consume path only.
	Topic       string
	Partition   int32
	Offset      int64
	Timestamp   time.Time
	LeaderEpoch *int32
}

// New returns an empty envelope with initialized headers.
func New[T any]() *Envelope[T] {
	return &Envelope[T]{Headers: NewHeaders()}
}

// From wraps a message for the produce path.
func From[T any](msg *T) *Envelope[T] {
	e := New[T]()
	e.Message = msg
	return e
}

// FromBroker builds a consume-path envelope from a wire message.
func FromBroker[T any](m *contracts.BrokerMessage) *Envelope[T] {
	e := New[T]()
	e.Key = string(m.Key)
	e.Payload = m.Value
	e.Topic = m.Topic
	e.Partition = m.Partition
	e.Offset = m.Offset
	e.Timestamp = m.Timestamp
	e.LeaderEpoch = m.LeaderEpoch
	for _, h := range m.Headers {
		e.Headers.Set(h.Key, h.Value)
	}
	return e
}

// ToBroker converts a produce-path envelope to its wire form.
func (e *Envelope[T]) ToBroker(topic string) *contracts.BrokerMessage {
	m := &contracts.BrokerMessage{
		Topic: topic,
		Value: e.Payload,
	}
	if e.Key != "" {
		m.Key = []byte(e.Key)
	}
	for _, k := range e.Headers.Keys() {
		m.Headers = append(m.Headers, contracts.MessageHeader{Key: k, Value: e.Headers.Get(k)})
	}
	return m
}
