// Package consumer delivers typed messages from a broker subscription
// through a per-topic middleware chain, with bounded buffering and
// watermark backpressure between the fetcher and the handler.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/envelope"
	"github.com/madcok-co/relay/core/pkg/inbox"
	"github.com/madcok-co/relay/core/pkg/pipeline"
	"github.com/madcok-co/relay/core/pkg/scope"
	"github.com/madcok-co/relay/core/pkg/telemetry"
	"github.com/madcok-co/relay/core/pkg/topic"
)

// ErrNotStarted is returned by Next and Each before Start.
var ErrNotStarted = errors.New("consumer: not started")

// Options carries the shared infrastructure a consumer binds to.
type Options struct {
	Broker contracts.Broker

	// Database opens the per-message transaction the handler and inbox
	// mark share. Nil is allowed when the inbox is off; handlers then
	// run without a transaction.
	Database contracts.Database

	// InboxStore backs deduplication for topics with the inbox on.
	InboxStore contracts.InboxStore

	Diagnostics *telemetry.Diagnostics
}

// Consumer reads messages of type T for one consumer group. A single
// fetcher goroutine feeds a bounded channel; Next and Each drain it.
// Next and Each must be called from one goroutine at a time.
type Consumer[T any] struct {
	cfg  *topic.Config[T]
	opts Options
	log  contracts.Logger

	guard      *inbox.Guard
	decompress pipeline.Handler[T]

	decodeErrors contracts.Counter
	dropped      contracts.Counter

	sub contracts.Subscription
	buf chan *contracts.BrokerMessage

	high   int
	low    int
	paused atomic.Bool

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	fetchDone chan struct{}
}

// New binds a topic configuration to the broker.
func New[T any](cfg *topic.Config[T], opts Options) (*Consumer[T], error) {
	if opts.Broker == nil {
		return nil, errors.New("consumer: broker is required")
	}
	cs := cfg.Consumer()
	if cs.Group == "" {
		return nil, fmt.Errorf("consumer: topic %q has no consumer group", cfg.Name())
	}
	if cs.InboxEnabled && opts.InboxStore == nil {
		return nil, fmt.Errorf("consumer: topic %q uses the inbox but no store is wired", cfg.Name())
	}
	if cs.InboxEnabled && opts.Database == nil {
		return nil, fmt.Errorf("consumer: topic %q uses the inbox but no database is wired", cfg.Name())
	}

	bp := cs.Backpressure
	c := &Consumer[T]{
		cfg:  cfg,
		opts: opts,
		log: opts.Diagnostics.Logger().Named("consumer").
			WithFields("topic", cfg.Name(), "group", cs.Group),
		buf:  make(chan *contracts.BrokerMessage, bp.Buffer),
		high: int(float64(bp.Buffer) * bp.HighWaterRatio),
		low:  int(float64(bp.Buffer) * bp.LowWaterRatio),
		decodeErrors: opts.Diagnostics.Counter(contracts.MetricConsumerDecodeErrors,
			contracts.T(contracts.TagTopic, cfg.Name())),
		dropped: opts.Diagnostics.Counter(contracts.MetricConsumerDropped,
			contracts.T(contracts.TagTopic, cfg.Name())),
	}
	if cs.InboxEnabled {
		c.guard = inbox.NewGuard(opts.InboxStore)
	}

	// Decompression is unconditional on the consume path: whether a
	// payload is compressed is the producer's call, carried by the
	// $compression header.
	c.decompress = pipeline.Chain(
		pipeline.Drop[T](),
		pipeline.Decompress[T](pipeline.CompressSettings{Enabled: true}),
	)
	return c, nil
}

// Start subscribes and launches the fetcher.
func (c *Consumer[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("consumer: already started")
	}

	sub, err := c.opts.Broker.Subscribe(ctx, c.cfg.Consumer().Group, c.cfg.Name())
	if err != nil {
		return fmt.Errorf("consumer: subscribe %q: %w", c.cfg.Name(), err)
	}
	c.sub = sub
	c.started = true

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.fetchDone = make(chan struct{})
	go c.fetch(fetchCtx)

	c.log.Info("consumer started", "buffer", cap(c.buf))
	return nil
}

// fetch is the single goroutine moving messages from the subscription
// into the bounded buffer.
func (c *Consumer[T]) fetch(ctx context.Context) {
	defer close(c.fetchDone)
	mode := c.cfg.Consumer().Backpressure.Mode

	for {
		msg, err := c.sub.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("fetch failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		if !c.matches(msg) {
			// Filtered out: consumed as far as the broker is concerned.
			c.sub.StoreOffset(msg.Topic, msg.Partition, msg.Offset+1)
			continue
		}

		if mode == topic.DropOldest {
			c.bufferDroppingOldest(ctx, msg)
			continue
		}

		select {
		case c.buf <- msg:
		case <-ctx.Done():
			return
		}
		if !c.paused.Load() && len(c.buf) >= c.high {
			c.paused.Store(true)
			c.sub.Pause()
			c.log.Debug("high watermark reached, fetch paused", "buffered", len(c.buf))
		}
	}
}

func (c *Consumer[T]) bufferDroppingOldest(ctx context.Context, msg *contracts.BrokerMessage) {
	for {
		select {
		case c.buf <- msg:
			return
		default:
		}
		select {
		case old := <-c.buf:
			c.sub.StoreOffset(old.Topic, old.Partition, old.Offset+1)
			c.dropped.Inc()
		case <-ctx.Done():
			return
		default:
		}
	}
}

// matches applies the consumer's header filters, AND semantics.
func (c *Consumer[T]) matches(msg *contracts.BrokerMessage) bool {
	for _, f := range c.cfg.Consumer().Filters {
		if msg.Header(f.Name) != f.Value {
			return false
		}
	}
	return true
}

// Next blocks for the next decoded message. Undecodable messages are
// counted, skipped, and their offsets stored; they never surface.
// Callers own the offset: call Commit after processing.
func (c *Consumer[T]) Next(ctx context.Context) (*envelope.Envelope[T], error) {
	if !c.isStarted() {
		return nil, ErrNotStarted
	}

	for {
		var msg *contracts.BrokerMessage
		select {
		case msg = <-c.buf:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if c.paused.Load() && len(c.buf) <= c.low {
			c.paused.Store(false)
			c.sub.Resume()
			c.log.Debug("low watermark reached, fetch resumed", "buffered", len(c.buf))
		}

		env, err := c.decode(ctx, msg)
		if err != nil {
			c.decodeErrors.Inc()
			c.log.WithError(err).Error("undecodable message skipped",
				"partition", msg.Partition, "offset", msg.Offset)
			c.sub.StoreOffset(msg.Topic, msg.Partition, msg.Offset+1)
			continue
		}
		return env, nil
	}
}

func (c *Consumer[T]) decode(ctx context.Context, msg *contracts.BrokerMessage) (*envelope.Envelope[T], error) {
	env := envelope.FromBroker[T](msg)
	if err := c.decompress(ctx, env); err != nil {
		return nil, err
	}
	m, err := c.cfg.Codec().Deserialize(env.Headers, env.Payload)
	if err != nil {
		return nil, err
	}
	env.Message = m
	return env, nil
}

// Commit stores the offset after env so the message is not redelivered.
func (c *Consumer[T]) Commit(env *envelope.Envelope[T]) {
	c.sub.StoreOffset(env.Topic, env.Partition, env.Offset+1)
}

// Each delivers messages to handler until ctx is cancelled or the
// handler fails. Every message runs through the consume chain; when the
// inbox is on, the dedup mark and the handler share one transaction, so
// a handler error also rolls the mark back. Offsets are stored after
// each successful (or deduplicated) delivery.
func (c *Consumer[T]) Each(ctx context.Context, handler func(ctx context.Context, msg *T) error) error {
	if !c.isStarted() {
		return ErrNotStarted
	}

	terminal := func(ctx context.Context, env *envelope.Envelope[T]) error {
		return handler(ctx, env.Message)
	}

	inner := pipeline.Chain(terminal, append(c.inboxStage(), c.cfg.ConsumeStages()...)...)
	deliver := pipeline.Chain(
		c.transactional(inner),
		telemetry.ConsumeSpan[T](c.opts.Diagnostics, c.cfg.Name(), c.cfg.Consumer().Group),
	)

	for {
		env, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := deliver(ctx, env); err != nil {
			return fmt.Errorf("consumer: handle %q partition %d offset %d: %w",
				env.Topic, env.Partition, env.Offset, err)
		}
		c.Commit(env)
	}
}

func (c *Consumer[T]) inboxStage() []pipeline.Middleware[T] {
	if c.guard == nil {
		return nil
	}
	return []pipeline.Middleware[T]{
		inbox.Stage(c.guard, c.cfg.Tag(), c.cfg.Dedup(), c.opts.Diagnostics.Metrics()),
	}
}

// transactional wraps next in a per-message transaction when a database
// is wired, passing the tx handle down through the context.
func (c *Consumer[T]) transactional(next pipeline.Handler[T]) pipeline.Handler[T] {
	if c.opts.Database == nil {
		return next
	}
	return func(ctx context.Context, env *envelope.Envelope[T]) error {
		return c.opts.Database.Transaction(ctx, func(tx contracts.Database) error {
			return next(scope.WithTx(ctx, tx), env)
		})
	}
}

func (c *Consumer[T]) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Close stops the fetcher and releases the subscription.
func (c *Consumer[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	c.cancel()
	<-c.fetchDone
	err := c.sub.Close()
	c.log.Info("consumer closed")
	return err
}
