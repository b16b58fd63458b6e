package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// FlushFunc publishes a full batch in one broker call.
type FlushFunc[T any] func(ctx context.Context, envs []*envelope.Envelope[T]) error

// Batcher groups envelopes into broker batches. It sits at the terminal
// position of a producer chain: callers block until the batch holding
// their envelope is flushed and share its outcome. A batch flushes when
// it reaches Size or when FlushInterval elapses after the first append.
type Batcher[T any] struct {
	settings BatchSettings
	flush    FlushFunc[T]

	mu      sync.Mutex
	current *batch[T]
	timer   *time.Timer
	closed  bool
}

type batch[T any] struct {
	envs []*envelope.Envelope[T]
	done chan struct{}
	err  error
}

// NewBatcher builds a batcher. The caller owns flush; it is invoked
// from whichever goroutine completes a batch.
func NewBatcher[T any](s BatchSettings, flush FlushFunc[T]) *Batcher[T] {
	return &Batcher[T]{settings: s, flush: flush}
}

// Publish appends the envelope to the open batch and waits for its
// flush. It is the terminal Handler of a batching chain.
func (b *Batcher[T]) Publish(ctx context.Context, env *envelope.Envelope[T]) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}

	if b.current == nil {
		b.current = &batch[T]{done: make(chan struct{})}
		// The interval flush serves every waiter in the batch, not just
		// the caller that opened it. Detach from the opener's ctx so its
		// cancellation cannot fail the others' publishes.
		flushCtx := context.WithoutCancel(ctx)
		b.timer = time.AfterFunc(b.settings.FlushInterval, func() {
			b.mu.Lock()
			pending := b.take()
			b.mu.Unlock()
			b.run(flushCtx, pending)
		})
	}
	cur := b.current
	cur.envs = append(cur.envs, env)

	var full *batch[T]
	if len(cur.envs) >= b.settings.Size {
		full = b.take()
	}
	b.mu.Unlock()

	if full != nil {
		b.run(ctx, full)
	}

	select {
	case <-cur.done:
		return cur.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// take detaches the open batch. Caller holds the lock.
func (b *Batcher[T]) take() *batch[T] {
	cur := b.current
	b.current = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return cur
}

func (b *Batcher[T]) run(ctx context.Context, pending *batch[T]) {
	if pending == nil || len(pending.envs) == 0 {
		return
	}
	pending.err = b.flush(ctx, pending.envs)
	close(pending.done)
}

// Close flushes any open batch and rejects further publishes.
func (b *Batcher[T]) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pending := b.take()
	b.mu.Unlock()

	b.run(ctx, pending)
	if pending != nil {
		return pending.err
	}
	return nil
}
