// Package memory is an in-memory broker untuk testing dan development.
// Topics are partitioned append-only logs; subscriptions fetch
// sequentially and store offsets per consumer group, close enough to
// Kafka semantics for the runtime components to be exercised without a
// cluster.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// DefaultPartitions per topic. Enough to exercise keyed ordering.
const DefaultPartitions = 4

// Broker adalah in-memory message broker untuk testing dan development
type Broker struct {
	mu         sync.Mutex
	connected  bool
	partitions int

	logs    map[string][][]*contracts.BrokerMessage            // topic -> partition -> log
	offsets map[string]map[string][]int64                      // group -> topic -> stored offsets
	rr      map[string]int                                     // round-robin cursor for keyless messages
	history map[string][]*contracts.BrokerMessage              // publish order per topic, for assertions

	// waitCh is closed and replaced on every append so blocked fetchers
	// wake up.
	waitCh chan struct{}
}

// New creates a new in-memory broker.
func New() *Broker {
	return NewPartitioned(DefaultPartitions)
}

// NewPartitioned creates a broker with a fixed partition count per topic.
func NewPartitioned(partitions int) *Broker {
	if partitions < 1 {
		partitions = 1
	}
	return &Broker{
		partitions: partitions,
		logs:       make(map[string][][]*contracts.BrokerMessage),
		offsets:    make(map[string]map[string][]int64),
		rr:         make(map[string]int),
		history:    make(map[string][]*contracts.BrokerMessage),
		waitCh:     make(chan struct{}),
	}
}

// Name returns broker name
func (b *Broker) Name() string {
	return "memory"
}

// Connect connects to broker (no-op for memory)
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// Disconnect disconnects from broker
func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.wake()
	return nil
}

// Ping checks connection
func (b *Broker) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("not connected")
	}
	return nil
}

// IsConnected returns connection status
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// wake releases all blocked fetchers. Caller holds the lock.
func (b *Broker) wake() {
	close(b.waitCh)
	b.waitCh = make(chan struct{})
}

func (b *Broker) topicLogs(topic string) [][]*contracts.BrokerMessage {
	logs, ok := b.logs[topic]
	if !ok {
		logs = make([][]*contracts.BrokerMessage, b.partitions)
		b.logs[topic] = logs
	}
	return logs
}

// partitionFor hashes keyed messages to a stable partition; keyless
// messages rotate.
func (b *Broker) partitionFor(topic string, key []byte) int32 {
	if len(key) > 0 {
		return int32(xxhash.Sum64(key) % uint64(b.partitions))
	}
	p := b.rr[topic] % b.partitions
	b.rr[topic] = p + 1
	return int32(p)
}

// Publish appends a message to its partition's log.
func (b *Broker) Publish(ctx context.Context, topic string, msg *contracts.BrokerMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishLocked(topic, msg)
}

// PublishBatch appends messages atomically, preserving order.
func (b *Broker) PublishBatch(ctx context.Context, topic string, msgs []*contracts.BrokerMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range msgs {
		if err := b.publishLocked(topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) publishLocked(topic string, msg *contracts.BrokerMessage) error {
	if !b.connected {
		return fmt.Errorf("not connected")
	}

	logs := b.topicLogs(topic)
	p := b.partitionFor(topic, msg.Key)

	msg.Topic = topic
	msg.Partition = p
	msg.Offset = int64(len(logs[p]))
	msg.Timestamp = time.Now()

	logs[p] = append(logs[p], msg)
	b.history[topic] = append(b.history[topic], msg)
	b.wake()
	return nil
}

// Published returns every message on a topic in publish order. Test
// helper; the slice is a copy.
func (b *Broker) Published(topic string) []*contracts.BrokerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*contracts.BrokerMessage, len(b.history[topic]))
	copy(out, b.history[topic])
	return out
}

// Subscribe joins a group on a topic. Each subscription owns all
// partitions; there is no rebalance protocol here.
func (b *Broker) Subscribe(ctx context.Context, group, topic string) (contracts.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, fmt.Errorf("not connected")
	}

	if _, ok := b.offsets[group]; !ok {
		b.offsets[group] = make(map[string][]int64)
	}
	if _, ok := b.offsets[group][topic]; !ok {
		b.offsets[group][topic] = make([]int64, b.partitions)
	}

	cursors := make([]int64, b.partitions)
	copy(cursors, b.offsets[group][topic])

	return &groupSubscription{
		broker:  b,
		group:   group,
		topic:   topic,
		cursors: cursors,
	}, nil
}

// groupSubscription reads a topic's partitions round-robin from its
// cursor positions. Fetch is single-goroutine by contract.
type groupSubscription struct {
	broker  *Broker
	group   string
	topic   string
	cursors []int64
	next    int // partition scan start, rotated for fairness

	paused bool
	closed bool
}

// Fetch blocks until a message is available or ctx is cancelled.
func (s *groupSubscription) Fetch(ctx context.Context) (*contracts.BrokerMessage, error) {
	for {
		b := s.broker
		b.mu.Lock()
		if s.closed {
			b.mu.Unlock()
			return nil, fmt.Errorf("subscription closed")
		}
		if !s.paused {
			logs := b.topicLogs(s.topic)
			for i := 0; i < len(logs); i++ {
				p := (s.next + i) % len(logs)
				if s.cursors[p] < int64(len(logs[p])) {
					msg := logs[p][s.cursors[p]]
					s.cursors[p]++
					s.next = p + 1
					b.mu.Unlock()
					return msg, nil
				}
			}
		}
		wait := b.waitCh
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// StoreOffset records the group's committed offset for a partition.
func (s *groupSubscription) StoreOffset(topic string, partition int32, offset int64) {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.offsets[s.group][topic]
	if !ok || int(partition) >= len(stored) {
		return
	}
	if offset > stored[partition] {
		stored[partition] = offset
	}
}

// Pause stops Fetch from returning messages until Resume.
func (s *groupSubscription) Pause() {
	s.broker.mu.Lock()
	s.paused = true
	s.broker.mu.Unlock()
}

// Resume re-enables fetching.
func (s *groupSubscription) Resume() {
	s.broker.mu.Lock()
	s.paused = false
	s.broker.wake()
	s.broker.mu.Unlock()
}

// Close releases the subscription and unblocks Fetch.
func (s *groupSubscription) Close() error {
	s.broker.mu.Lock()
	s.closed = true
	s.broker.wake()
	s.broker.mu.Unlock()
	return nil
}

// StoredOffset returns the group's committed offset for a partition.
// Test helper.
func (b *Broker) StoredOffset(group, topic string, partition int32) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.offsets[group][topic]
	if !ok || int(partition) >= len(stored) {
		return 0
	}
	return stored[partition]
}

var _ contracts.Broker = (*Broker)(nil)
var _ contracts.Subscription = (*groupSubscription)(nil)
