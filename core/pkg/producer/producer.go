// Package producer sends typed messages through a per-topic middleware
// chain, with optional durable staging through the outbox.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/envelope"
	"github.com/madcok-co/relay/core/pkg/outbox"
	"github.com/madcok-co/relay/core/pkg/pipeline"
	"github.com/madcok-co/relay/core/pkg/scope"
	"github.com/madcok-co/relay/core/pkg/telemetry"
	"github.com/madcok-co/relay/core/pkg/topic"
)

// ErrOutsideTransaction is returned when an outbox-backed topic is
// produced to without a session transaction to stage the row in.
var ErrOutsideTransaction = errors.New("producer: outbox topic requires a session transaction")

// Client produces messages of type T. Build one per registered topic at
// startup; it is safe for concurrent use.
type Client[T any] struct {
	cfg    *topic.Config[T]
	broker contracts.Broker
	store  contracts.OutboxStore
	diag   *telemetry.Diagnostics
	log    contracts.Logger

	prepare pipeline.Handler[T]
	publish pipeline.Handler[T]
	batcher *pipeline.Batcher[T]

	now func() time.Time
}

// Options carries the shared infrastructure a client binds to.
type Options struct {
	Broker      contracts.Broker
	OutboxStore contracts.OutboxStore
	Router      *outbox.Router
	Diagnostics *telemetry.Diagnostics
}

// New binds a topic configuration to the broker and outbox store. When
// a router is given the client registers its replay path on it so the
// polling worker can publish staged rows.
func New[T any](cfg *topic.Config[T], opts Options) (*Client[T], error) {
	if opts.Broker == nil {
		return nil, errors.New("producer: broker is required")
	}
	p := cfg.Producer()
	if p.Outbox != topic.OutboxNone && opts.OutboxStore == nil {
		return nil, fmt.Errorf("producer: topic %q uses the outbox but no store is wired", cfg.Name())
	}

	c := &Client[T]{
		cfg:    cfg,
		broker: opts.Broker,
		store:  opts.OutboxStore,
		diag:   opts.Diagnostics,
		log:    opts.Diagnostics.Logger().Named("producer").WithFields("topic", cfg.Name()),
		now:    time.Now,
	}

	c.prepare = pipeline.Chain(
		pipeline.Drop[T](),
		append([]pipeline.Middleware[T]{
			serialize[T](cfg),
			project[T](cfg),
			pipeline.Compress[T](p.Compress),
		}, cfg.ProduceStages()...)...,
	)

	terminal := c.publishDirect
	if p.Batch.Enabled {
		c.batcher = pipeline.NewBatcher(p.Batch, c.flushBatch)
		terminal = c.batcher.Publish
	}
	c.publish = pipeline.Chain(
		terminal,
		pipeline.Retry[T](p.Retry),
		pipeline.Breaker[T](cfg.Name(), p.Breaker),
		pipeline.Throttle[T](p.Throttle),
	)

	if opts.Router != nil && p.Outbox != topic.OutboxNone {
		opts.Router.Register(cfg.Tag(), c.replay)
	}
	return c, nil
}

// serialize fills Payload from Message and stamps the type headers.
func serialize[T any](cfg *topic.Config[T]) pipeline.Middleware[T] {
	return func(next pipeline.Handler[T]) pipeline.Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			payload, err := cfg.Codec().Serialize(env.Headers, env.Message)
			if err != nil {
				return err
			}
			env.Payload = payload
			return next(ctx, env)
		}
	}
}

// project applies the key extractor and header projections.
func project[T any](cfg *topic.Config[T]) pipeline.Middleware[T] {
	return func(next pipeline.Handler[T]) pipeline.Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			env.Key = cfg.Key(env.Message)
			for _, hp := range cfg.Headers() {
				env.Headers.Set(hp.Name, hp.Value(env.Message))
			}
			return next(ctx, env)
		}
	}
}

// Produce sends one message according to the topic's strategy. For
// outbox topics it must run inside a session transaction; the row
// commits with the caller's domain writes.
func (c *Client[T]) Produce(ctx context.Context, msg *T) error {
	env := envelope.From(msg)

	span := telemetry.ProduceSpan[T](c.diag, c.cfg.Name())
	return span(func(ctx context.Context, env *envelope.Envelope[T]) error {
		if err := c.prepare(ctx, env); err != nil {
			return err
		}
		return c.dispatch(ctx, env)
	})(ctx, env)
}

func (c *Client[T]) dispatch(ctx context.Context, env *envelope.Envelope[T]) error {
	p := c.cfg.Producer()

	if p.Outbox != topic.OutboxNone {
		return c.stage(ctx, env, p.Outbox == topic.OutboxImmediateWithFallback)
	}

	switch p.Forget {
	case topic.FireForget:
		detached := context.WithoutCancel(ctx)
		go func() {
			if err := c.publish(detached, env); err != nil {
				c.log.WithError(err).Warn("fire-and-forget publish failed")
			}
		}()
		return nil

	case topic.AwaitForget:
		waitCtx, cancel := context.WithTimeout(ctx, p.ForgetTimeout)
		defer cancel()
		if err := c.publish(waitCtx, env); err != nil {
			c.log.WithError(err).Warn("await-and-forget publish failed")
		}
		return nil

	default:
		return c.publish(ctx, env)
	}
}

// stage enqueues the outbox command on the scope registry.
func (c *Client[T]) stage(ctx context.Context, env *envelope.Envelope[T], immediate bool) error {
	reg := scope.FromContext(ctx)
	if reg == nil {
		return ErrOutsideTransaction
	}

	headers, err := json.Marshal(env.Headers)
	if err != nil {
		return fmt.Errorf("producer: encode headers: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("producer: outbox id: %w", err)
	}

	rec := &contracts.OutboxRecord{
		ID:             id.String(),
		AggregateID:    env.Key,
		Topic:          c.cfg.Name(),
		Type:           c.cfg.Tag(),
		Payload:        env.Payload,
		Headers:        headers,
		CreatedAt:      c.now().UTC(),
		PartitionOwner: outbox.Owner(env.Key),
	}
	reg.Enqueue(&stageCommand[T]{client: c, env: env, rec: rec, immediate: immediate})
	return nil
}

// publishDirect is the terminal stage: one broker call per envelope.
func (c *Client[T]) publishDirect(ctx context.Context, env *envelope.Envelope[T]) error {
	msg := env.ToBroker(c.cfg.Name())
	if err := c.broker.Publish(ctx, c.cfg.Name(), msg); err != nil {
		return err
	}
	env.Partition = msg.Partition
	env.Offset = msg.Offset
	return nil
}

// flushBatch publishes a completed batch in one broker call.
func (c *Client[T]) flushBatch(ctx context.Context, envs []*envelope.Envelope[T]) error {
	msgs := make([]*contracts.BrokerMessage, len(envs))
	for i, env := range envs {
		msgs[i] = env.ToBroker(c.cfg.Name())
	}
	return c.broker.PublishBatch(ctx, c.cfg.Name(), msgs)
}

// replay publishes one staged row fetched by the polling worker.
func (c *Client[T]) replay(ctx context.Context, rec *contracts.OutboxRecord) error {
	env := envelope.New[T]()
	env.Key = rec.AggregateID
	env.Payload = rec.Payload
	if len(rec.Headers) > 0 {
		if err := json.Unmarshal(rec.Headers, env.Headers); err != nil {
			return fmt.Errorf("producer: decode staged headers: %w", err)
		}
	}
	return c.publish(ctx, env)
}

// Close flushes any open publish batch.
func (c *Client[T]) Close(ctx context.Context) error {
	if c.batcher != nil {
		return c.batcher.Close(ctx)
	}
	return nil
}

// stageCommand persists the row with the caller's transaction, then on
// commit optionally attempts the immediate publish with worker fallback.
type stageCommand[T any] struct {
	client    *Client[T]
	env       *envelope.Envelope[T]
	rec       *contracts.OutboxRecord
	immediate bool
}

func (s *stageCommand[T]) WithinTx(ctx context.Context, tx contracts.Database) error {
	return s.client.store.Insert(ctx, tx, s.rec)
}

func (s *stageCommand[T]) AfterCommit(ctx context.Context) error {
	if !s.immediate {
		return nil
	}
	c := s.client
	start := c.now()
	if err := c.publish(ctx, s.env); err != nil {
		c.log.WithError(err).Warn("immediate publish failed, row left for the worker",
			"outbox_id", s.rec.ID)
		return nil
	}
	c.diag.Histogram(contracts.MetricOutboxPublishDuration,
		contracts.T(contracts.TagTopic, s.rec.Topic)).Observe(c.now().Sub(start).Seconds())

	if err := c.store.Delete(ctx, s.rec.ID); err != nil {
		// The worker will republish; consumers dedupe through the inbox.
		c.log.WithError(err).Warn("published row not deleted", "outbox_id", s.rec.ID)
	}
	return nil
}
