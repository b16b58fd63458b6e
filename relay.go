// Package relay is a transactional messaging layer over a message
// broker and a relational store. Messages are typed; each type is bound
// to a topic, a codec, and a middleware chain built once at startup.
// Producing inside a session transaction stages rows in the outbox so
// domain writes and messages commit or roll back together; consuming
// with the inbox on makes handlers idempotent under redelivery.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/madcok-co/relay/core/pkg/consumer"
	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/outbox"
	"github.com/madcok-co/relay/core/pkg/producer"
	"github.com/madcok-co/relay/core/pkg/telemetry"
	"github.com/madcok-co/relay/core/pkg/topic"
)

// Version information
const (
	Version = "1.0.0"
	Name    = "RELAY"
)

// Engine wires the model, broker, stores, and observability drivers
// together. Build it once at startup, register producers and consumers,
// then Seal before serving traffic.
type Engine struct {
	model  *topic.Model
	router *outbox.Router

	broker      contracts.Broker
	database    contracts.Database
	outboxStore contracts.OutboxStore
	inboxStore  contracts.InboxStore
	diag        *telemetry.Diagnostics

	worker *outbox.Worker

	closers []func(ctx context.Context) error
}

// Option configures the engine.
type Option func(*Engine)

// WithBroker wires the message broker. Required.
func WithBroker(b contracts.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithDatabase wires the transaction boundary shared by sessions,
// outbox inserts, and inbox marks.
func WithDatabase(db contracts.Database) Option {
	return func(e *Engine) { e.database = db }
}

// WithOutboxStore wires durable staging for outbox topics.
func WithOutboxStore(s contracts.OutboxStore) Option {
	return func(e *Engine) { e.outboxStore = s }
}

// WithInboxStore wires fingerprint storage for inbox topics.
func WithInboxStore(s contracts.InboxStore) Option {
	return func(e *Engine) { e.inboxStore = s }
}

// WithLogger wires structured logging.
func WithLogger(l contracts.Logger) Option {
	return func(e *Engine) { e.diag = telemetry.NewDiagnostics(l, e.diag.Metrics(), e.diag.Tracer()) }
}

// WithDiagnostics wires logging, metrics, and tracing in one call.
func WithDiagnostics(d *telemetry.Diagnostics) Option {
	return func(e *Engine) { e.diag = d }
}

// New builds an engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		model:  topic.NewModel(),
		router: outbox.NewRouter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.broker == nil {
		return nil, errors.New("relay: a broker is required")
	}
	return e, nil
}

// Model returns the topic model for builder registration.
func (e *Engine) Model() *topic.Model { return e.model }

// Seal freezes topic registration.
func (e *Engine) Seal() { e.model.Seal() }

// Define starts a topic builder for T on the engine's model.
func Define[T any](e *Engine) *topic.Builder[T] {
	return topic.Define[T](e.model)
}

// Producer builds the producer client for T's registered topic.
func Producer[T any](e *Engine) (*producer.Client[T], error) {
	cfg, err := topic.Lookup[T](e.model)
	if err != nil {
		return nil, err
	}
	c, err := producer.New(cfg, producer.Options{
		Broker:      e.broker,
		OutboxStore: e.outboxStore,
		Router:      e.router,
		Diagnostics: e.diag,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, c.Close)
	return c, nil
}

// Consumer builds and starts the consumer for T's registered topic.
func Consumer[T any](ctx context.Context, e *Engine) (*consumer.Consumer[T], error) {
	cfg, err := topic.Lookup[T](e.model)
	if err != nil {
		return nil, err
	}
	c, err := consumer.New(cfg, consumer.Options{
		Broker:      e.broker,
		Database:    e.database,
		InboxStore:  e.inboxStore,
		Diagnostics: e.diag,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) error { return c.Close() })
	return c, nil
}

// StartOutboxWorker launches the polling worker draining staged rows.
func (e *Engine) StartOutboxWorker(ctx context.Context, cfg outbox.WorkerConfig) error {
	if e.outboxStore == nil {
		return errors.New("relay: outbox worker requires an outbox store")
	}
	if e.worker != nil {
		return errors.New("relay: outbox worker already started")
	}
	e.worker = outbox.NewWorker(e.outboxStore, e.router, e.diag, cfg)
	return e.worker.Start(ctx)
}

// Session opens a transactional scope over the engine's database.
func (e *Engine) Session() (*Session, error) {
	if e.database == nil {
		return nil, errors.New("relay: sessions require a database")
	}
	return &Session{db: e.database}, nil
}

// Close stops the worker, flushes producers, and closes consumers.
func (e *Engine) Close(ctx context.Context) error {
	if e.worker != nil {
		e.worker.Stop()
		e.worker = nil
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("relay: close: %v", errs)
	}
	return nil
}
