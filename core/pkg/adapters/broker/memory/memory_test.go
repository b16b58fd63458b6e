package memory

import (
	"context"
	"testing"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

func TestBroker_Connect(t *testing.T) {
	b := New()

	err := b.Connect(context.Background())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	if !b.IsConnected() {
		t.Error("should be connected")
	}

	if b.Name() != "memory" {
		t.Errorf("expected name memory, got %s", b.Name())
	}
}

func TestBroker_Ping(t *testing.T) {
	b := New()

	if err := b.Ping(context.Background()); err == nil {
		t.Error("should error when not connected")
	}

	b.Connect(context.Background())

	if err := b.Ping(context.Background()); err != nil {
		t.Error("should not error when connected")
	}
}

func TestBroker_Publish(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	t.Run("assigns partition and offset", func(t *testing.T) {
		msg := &contracts.BrokerMessage{Value: []byte("hello")}
		if err := b.Publish(context.Background(), "orders", msg); err != nil {
			t.Fatalf("failed to publish: %v", err)
		}

		if msg.Topic != "orders" {
			t.Errorf("expected topic orders, got %s", msg.Topic)
		}
		if msg.Offset != 0 {
			t.Errorf("expected offset 0, got %d", msg.Offset)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp should be set")
		}
	})

	t.Run("same key lands on same partition", func(t *testing.T) {
		first := &contracts.BrokerMessage{Key: []byte("agg-1"), Value: []byte("a")}
		second := &contracts.BrokerMessage{Key: []byte("agg-1"), Value: []byte("b")}
		b.Publish(context.Background(), "keyed", first)
		b.Publish(context.Background(), "keyed", second)

		if first.Partition != second.Partition {
			t.Errorf("same key should share a partition: %d vs %d", first.Partition, second.Partition)
		}
		if second.Offset != first.Offset+1 {
			t.Errorf("expected consecutive offsets, got %d then %d", first.Offset, second.Offset)
		}
	})

	t.Run("keyless messages rotate partitions", func(t *testing.T) {
		seen := make(map[int32]bool)
		for i := 0; i < DefaultPartitions; i++ {
			msg := &contracts.BrokerMessage{Value: []byte("x")}
			b.Publish(context.Background(), "rotate", msg)
			seen[msg.Partition] = true
		}
		if len(seen) != DefaultPartitions {
			t.Errorf("expected %d partitions used, got %d", DefaultPartitions, len(seen))
		}
	})

	t.Run("fails when not connected", func(t *testing.T) {
		b2 := New()
		err := b2.Publish(context.Background(), "topic", &contracts.BrokerMessage{Value: []byte("test")})
		if err == nil {
			t.Error("should error when not connected")
		}
	})
}

func TestBroker_PublishBatch(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	msgs := []*contracts.BrokerMessage{
		{Key: []byte("k"), Value: []byte("1")},
		{Key: []byte("k"), Value: []byte("2")},
		{Key: []byte("k"), Value: []byte("3")},
	}
	if err := b.PublishBatch(context.Background(), "batch", msgs); err != nil {
		t.Fatalf("batch publish failed: %v", err)
	}

	published := b.Published("batch")
	if len(published) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(published))
	}
	for i, msg := range published {
		if string(msg.Value) != string(msgs[i].Value) {
			t.Errorf("message %d out of order: %s", i, msg.Value)
		}
	}
}

func TestSubscription_Fetch(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	t.Run("drains published messages", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			b.Publish(context.Background(), "drain", &contracts.BrokerMessage{Key: []byte("k"), Value: []byte{byte('a' + i)}})
		}

		sub, err := b.Subscribe(context.Background(), "g1", "drain")
		if err != nil {
			t.Fatalf("failed to subscribe: %v", err)
		}
		defer sub.Close()

		got := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			msg, err := sub.Fetch(context.Background())
			if err != nil {
				t.Fatalf("fetch %d failed: %v", i, err)
			}
			got = append(got, string(msg.Value))
		}
		if got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("partition order not preserved: %v", got)
		}
	})

	t.Run("blocks until publish", func(t *testing.T) {
		sub, _ := b.Subscribe(context.Background(), "g2", "late")
		defer sub.Close()

		done := make(chan string, 1)
		go func() {
			msg, err := sub.Fetch(context.Background())
			if err != nil {
				return
			}
			done <- string(msg.Value)
		}()

		time.Sleep(20 * time.Millisecond)
		b.Publish(context.Background(), "late", &contracts.BrokerMessage{Value: []byte("woke")})

		select {
		case v := <-done:
			if v != "woke" {
				t.Errorf("expected woke, got %s", v)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for fetch to wake")
		}
	})

	t.Run("returns on context cancel", func(t *testing.T) {
		sub, _ := b.Subscribe(context.Background(), "g3", "never")
		defer sub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := sub.Fetch(ctx); err == nil {
			t.Error("should error on cancelled context")
		}
	})
}

func TestSubscription_StoreOffset(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	msg := &contracts.BrokerMessage{Key: []byte("k"), Value: []byte("v")}
	b.Publish(context.Background(), "offsets", msg)

	sub, _ := b.Subscribe(context.Background(), "g1", "offsets")
	got, err := sub.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	sub.StoreOffset(got.Topic, got.Partition, got.Offset+1)
	sub.Close()

	if off := b.StoredOffset("g1", "offsets", got.Partition); off != got.Offset+1 {
		t.Errorf("expected stored offset %d, got %d", got.Offset+1, off)
	}

	t.Run("offsets are monotonic", func(t *testing.T) {
		sub2, _ := b.Subscribe(context.Background(), "g1", "offsets")
		defer sub2.Close()
		sub2.StoreOffset("offsets", got.Partition, 0)
		if off := b.StoredOffset("g1", "offsets", got.Partition); off != got.Offset+1 {
			t.Errorf("stored offset regressed to %d", off)
		}
	})

	t.Run("new subscription resumes from stored offset", func(t *testing.T) {
		b.Publish(context.Background(), "offsets", &contracts.BrokerMessage{Key: []byte("k"), Value: []byte("second")})

		sub3, _ := b.Subscribe(context.Background(), "g1", "offsets")
		defer sub3.Close()

		next, err := sub3.Fetch(context.Background())
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if string(next.Value) != "second" {
			t.Errorf("expected second, got %s", next.Value)
		}
	})
}

func TestSubscription_PauseResume(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	b.Publish(context.Background(), "paused", &contracts.BrokerMessage{Value: []byte("v")})

	sub, _ := b.Subscribe(context.Background(), "g1", "paused")
	defer sub.Close()

	sub.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := sub.Fetch(ctx); err == nil {
		t.Error("paused subscription should not return messages")
	}

	sub.Resume()
	msg, err := sub.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch after resume failed: %v", err)
	}
	if string(msg.Value) != "v" {
		t.Errorf("expected v, got %s", msg.Value)
	}
}

func TestSubscription_Close(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	sub, _ := b.Subscribe(context.Background(), "g1", "closing")
	if err := sub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := sub.Fetch(context.Background()); err == nil {
		t.Error("fetch on closed subscription should error")
	}
}

func TestBroker_GroupsAreIndependent(t *testing.T) {
	b := New()
	b.Connect(context.Background())

	b.Publish(context.Background(), "shared", &contracts.BrokerMessage{Key: []byte("k"), Value: []byte("v")})

	for _, group := range []string{"g1", "g2"} {
		sub, _ := b.Subscribe(context.Background(), group, "shared")
		msg, err := sub.Fetch(context.Background())
		if err != nil {
			t.Fatalf("group %s fetch failed: %v", group, err)
		}
		if string(msg.Value) != "v" {
			t.Errorf("group %s expected v, got %s", group, msg.Value)
		}
		sub.Close()
	}
}
