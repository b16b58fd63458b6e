package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

type Event struct {
	ID string `json:"id"`
}

func TestChain(t *testing.T) {
	t.Run("outermost stage runs first", func(t *testing.T) {
		var order []string
		stage := func(name string) Middleware[Event] {
			return func(next Handler[Event]) Handler[Event] {
				return func(ctx context.Context, env *envelope.Envelope[Event]) error {
					order = append(order, name)
					return next(ctx, env)
				}
			}
		}

		h := Chain(Drop[Event](), stage("a"), stage("b"), stage("c"))
		if err := h(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("chain failed: %v", err)
		}
		if strings.Join(order, "") != "abc" {
			t.Errorf("expected abc, got %v", order)
		}
	})

	t.Run("nil stages are skipped", func(t *testing.T) {
		ran := false
		mark := func(next Handler[Event]) Handler[Event] {
			return func(ctx context.Context, env *envelope.Envelope[Event]) error {
				ran = true
				return next(ctx, env)
			}
		}

		h := Chain(Drop[Event](), nil, mark, Retry[Event](RetrySettings{Enabled: false}))
		if err := h(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("chain failed: %v", err)
		}
		if !ran {
			t.Error("non-nil stage should have run")
		}
	})
}

func TestRetry(t *testing.T) {
	settings := RetrySettings{Enabled: true, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	t.Run("retries until success", func(t *testing.T) {
		attempts := 0
		h := Chain(func(ctx context.Context, env *envelope.Envelope[Event]) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		}, Retry[Event](settings))

		if err := h(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("expected success after retries: %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		boom := errors.New("down")
		attempts := 0
		h := Chain(func(ctx context.Context, env *envelope.Envelope[Event]) error {
			attempts++
			return boom
		}, Retry[Event](settings))

		err := h(context.Background(), envelope.New[Event]())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped boom, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("never retries cancellation", func(t *testing.T) {
		attempts := 0
		h := Chain(func(ctx context.Context, env *envelope.Envelope[Event]) error {
			attempts++
			return context.Canceled
		}, Retry[Event](settings))

		if err := h(context.Background(), envelope.New[Event]()); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("expected a single attempt, got %d", attempts)
		}
	})
}

func TestBreaker(t *testing.T) {
	settings := BreakerSettings{Enabled: true, ConsecutiveFails: 2, OpenTimeout: time.Minute, HalfOpenMaxCalls: 1}

	boom := errors.New("broker down")
	attempts := 0
	h := Chain(func(ctx context.Context, env *envelope.Envelope[Event]) error {
		attempts++
		return boom
	}, Breaker[Event]("orders", settings))

	env := envelope.New[Event]()
	for i := 0; i < 2; i++ {
		if err := h(context.Background(), env); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	// Open now: fail fast without reaching the terminal.
	err := h(context.Background(), env)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("open breaker should not call downstream, got %d attempts", attempts)
	}
}

func TestThrottle(t *testing.T) {
	t.Run("burst passes immediately", func(t *testing.T) {
		h := Chain(Drop[Event](), Throttle[Event](ThrottleSettings{Enabled: true, Rate: 1, Burst: 3}))

		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := h(context.Background(), envelope.New[Event]()); err != nil {
				t.Fatalf("call %d failed: %v", i, err)
			}
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("burst should not block, took %v", elapsed)
		}
	})

	t.Run("beyond burst respects cancellation", func(t *testing.T) {
		h := Chain(Drop[Event](), Throttle[Event](ThrottleSettings{Enabled: true, Rate: 0.1, Burst: 1}))

		if err := h(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("first call failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := h(ctx, envelope.New[Event]()); err == nil {
			t.Error("expected context error while waiting for a slot")
		}
	})
}

func TestCompress(t *testing.T) {
	big := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)

	roundTrip := func(t *testing.T, payload string, minSize int) (*envelope.Envelope[Event], bool) {
		t.Helper()
		env := envelope.New[Event]()
		env.Payload = []byte(payload)

		c := Chain(Drop[Event](), Compress[Event](CompressSettings{Enabled: true, Level: 4, MinSize: minSize}))
		if err := c(context.Background(), env); err != nil {
			t.Fatalf("compress failed: %v", err)
		}
		compressed := env.Headers.Get(envelope.HeaderCompression) != ""

		d := Chain(Drop[Event](), Decompress[Event](CompressSettings{Enabled: true}))
		if err := d(context.Background(), env); err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		return env, compressed
	}

	t.Run("round trips large payloads", func(t *testing.T) {
		env, compressed := roundTrip(t, big, 64)
		if !compressed {
			t.Error("payload above min size should be compressed")
		}
		if string(env.Payload) != big {
			t.Error("payload corrupted by round trip")
		}
		if env.Headers.Has(envelope.HeaderCompression) {
			t.Error("compression header should be cleared after decompress")
		}
	})

	t.Run("skips small payloads", func(t *testing.T) {
		env, compressed := roundTrip(t, "tiny", 64)
		if compressed {
			t.Error("payload below min size should pass through")
		}
		if string(env.Payload) != "tiny" {
			t.Errorf("payload changed: %s", env.Payload)
		}
	})

	t.Run("decompress passes uncompressed payloads through", func(t *testing.T) {
		env := envelope.New[Event]()
		env.Payload = []byte("plain")
		d := Chain(Drop[Event](), Decompress[Event](CompressSettings{Enabled: true}))
		if err := d(context.Background(), env); err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		if string(env.Payload) != "plain" {
			t.Errorf("payload changed: %s", env.Payload)
		}
	})
}

func TestBatcher(t *testing.T) {
	t.Run("flushes when full", func(t *testing.T) {
		flushed := make(chan int, 1)
		b := NewBatcher(BatchSettings{Enabled: true, Size: 2, FlushInterval: time.Hour},
			func(ctx context.Context, envs []*envelope.Envelope[Event]) error {
				flushed <- len(envs)
				return nil
			})
		defer b.Close(context.Background())

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- b.Publish(context.Background(), envelope.New[Event]()) }()
		}
		for i := 0; i < 2; i++ {
			if err := <-errs; err != nil {
				t.Fatalf("publish failed: %v", err)
			}
		}
		if n := <-flushed; n != 2 {
			t.Errorf("expected a batch of 2, got %d", n)
		}
	})

	t.Run("flushes on the interval", func(t *testing.T) {
		flushed := make(chan int, 1)
		b := NewBatcher(BatchSettings{Enabled: true, Size: 100, FlushInterval: 10 * time.Millisecond},
			func(ctx context.Context, envs []*envelope.Envelope[Event]) error {
				flushed <- len(envs)
				return nil
			})
		defer b.Close(context.Background())

		if err := b.Publish(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		select {
		case n := <-flushed:
			if n != 1 {
				t.Errorf("expected a batch of 1, got %d", n)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for interval flush")
		}
	})

	t.Run("callers share the flush error", func(t *testing.T) {
		boom := errors.New("publish failed")
		b := NewBatcher(BatchSettings{Enabled: true, Size: 2, FlushInterval: time.Hour},
			func(ctx context.Context, envs []*envelope.Envelope[Event]) error {
				return boom
			})
		defer b.Close(context.Background())

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- b.Publish(context.Background(), envelope.New[Event]()) }()
		}
		for i := 0; i < 2; i++ {
			if err := <-errs; !errors.Is(err, boom) {
				t.Errorf("expected shared flush error, got %v", err)
			}
		}
	})

	t.Run("interval flush survives the opener's cancellation", func(t *testing.T) {
		flushCtxErr := make(chan error, 1)
		b := NewBatcher(BatchSettings{Enabled: true, Size: 100, FlushInterval: 10 * time.Millisecond},
			func(ctx context.Context, envs []*envelope.Envelope[Event]) error {
				flushCtxErr <- ctx.Err()
				return ctx.Err()
			})
		defer b.Close(context.Background())

		// The opener bails out immediately, but its envelope stays in
		// the batch. A second caller waits for the interval flush.
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Publish(cancelled, envelope.New[Event]()); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled for the opener, got %v", err)
		}

		if err := b.Publish(context.Background(), envelope.New[Event]()); err != nil {
			t.Fatalf("waiter should get a clean flush, got %v", err)
		}
		select {
		case err := <-flushCtxErr:
			if err != nil {
				t.Errorf("flush ran under the opener's dead ctx: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for interval flush")
		}
	})

	t.Run("close flushes the open batch", func(t *testing.T) {
		flushed := make(chan int, 1)
		b := NewBatcher(BatchSettings{Enabled: true, Size: 100, FlushInterval: time.Hour},
			func(ctx context.Context, envs []*envelope.Envelope[Event]) error {
				flushed <- len(envs)
				return nil
			})

		done := make(chan error, 1)
		go func() { done <- b.Publish(context.Background(), envelope.New[Event]()) }()

		// Give the publish a moment to join the open batch.
		time.Sleep(20 * time.Millisecond)
		if err := b.Close(context.Background()); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if n := <-flushed; n != 1 {
			t.Errorf("expected a batch of 1, got %d", n)
		}
		if err := <-done; err != nil {
			t.Errorf("publish should share the close flush outcome: %v", err)
		}
	})
}
