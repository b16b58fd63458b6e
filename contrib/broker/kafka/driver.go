// Package kafka provides a Kafka implementation of the relay Broker interface.
//
// Usage:
//
//	import (
//	    "github.com/madcok-co/relay/contrib/broker/kafka"
//	)
//
//	driver := kafka.NewDriver(&kafka.Config{
//	    Brokers: []string{"localhost:9092"},
//	})
//	engine, err := relay.New(relay.WithBroker(driver), ...)
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Driver implements contracts.Broker using Kafka (Sarama)
type Driver struct {
	config    *Config
	client    sarama.Client
	producer  sarama.SyncProducer
	mu        sync.Mutex
	connected bool
	subs      []*groupSubscription
}

// Config for Kafka driver
type Config struct {
	Brokers  []string
	ClientID string
	Version  string // Kafka version, e.g., "2.8.0"

	// Producer settings
	RequiredAcks    sarama.RequiredAcks // NoResponse, WaitForLocal, WaitForAll
	Compression     sarama.CompressionCodec
	MaxMessageBytes int

	// Consumer settings
	OffsetInitial      int64 // OffsetNewest or OffsetOldest
	SessionTimeout     time.Duration
	HeartbeatInterval  time.Duration
	RebalanceStrategy  string // "range", "roundrobin", "sticky"
	AutoCommitInterval time.Duration

	// TLS/SASL
	UseTLS        bool
	TLSConfig     *TLSConfig
	UseSASL       bool
	SASLMechanism string // "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"
	SASLUser      string
	SASLPassword  string
}

// TLSConfig for TLS connections
type TLSConfig struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	SkipVerify bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:            []string{"localhost:9092"},
		ClientID:           "relay-client",
		Version:            "2.8.0",
		RequiredAcks:       sarama.WaitForAll,
		Compression:        sarama.CompressionSnappy,
		MaxMessageBytes:    1024 * 1024, // 1MB
		OffsetInitial:      sarama.OffsetOldest,
		SessionTimeout:     10 * time.Second,
		HeartbeatInterval:  3 * time.Second,
		RebalanceStrategy:  "roundrobin",
		AutoCommitInterval: 1 * time.Second,
	}
}

// NewDriver creates a new Kafka driver
func NewDriver(cfg *Config) *Driver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Driver{config: cfg}
}

// buildSaramaConfig builds Sarama configuration from our config
func (d *Driver) buildSaramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()

	// Parse version
	version, err := sarama.ParseKafkaVersion(d.config.Version)
	if err != nil {
		version = sarama.V2_8_0_0
	}
	cfg.Version = version

	// Client
	cfg.ClientID = d.config.ClientID

	// Producer
	cfg.Producer.RequiredAcks = d.config.RequiredAcks
	cfg.Producer.Compression = d.config.Compression
	cfg.Producer.MaxMessageBytes = d.config.MaxMessageBytes
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	// Consumer. Offsets are stored explicitly through MarkOffset and
	// flushed by the auto-commit ticker.
	cfg.Consumer.Offsets.Initial = d.config.OffsetInitial
	cfg.Consumer.Group.Session.Timeout = d.config.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = d.config.HeartbeatInterval
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Offsets.AutoCommit.Interval = d.config.AutoCommitInterval

	switch d.config.RebalanceStrategy {
	case "range":
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	case "sticky":
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	default:
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	}

	// SASL
	if d.config.UseSASL {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = d.config.SASLUser
		cfg.Net.SASL.Password = d.config.SASLPassword
		cfg.Net.SASL.Mechanism = sarama.SASLMechanism(d.config.SASLMechanism)
	}

	return cfg, nil
}

// Connect establishes connection to Kafka
func (d *Driver) Connect(ctx context.Context) error {
	cfg, err := d.buildSaramaConfig()
	if err != nil {
		return err
	}

	client, err := sarama.NewClient(d.config.Brokers, cfg)
	if err != nil {
		return err
	}
	d.client = client

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close() // Best-effort cleanup on error
		return err
	}
	d.producer = producer

	d.connected = true
	return nil
}

// Disconnect closes connections
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close() // Best-effort close
	}

	if d.producer != nil {
		_ = d.producer.Close() // Best-effort close
	}
	if d.client != nil {
		_ = d.client.Close() // Best-effort close
	}

	d.connected = false
	return nil
}

// Ping checks Kafka connectivity
func (d *Driver) Ping(ctx context.Context) error {
	if !d.connected || d.client == nil {
		return errors.New("kafka: not connected")
	}

	// Try to refresh metadata
	return d.client.RefreshMetadata()
}

// IsConnected returns connection status
func (d *Driver) IsConnected() bool {
	return d.connected
}

// Name returns broker name
func (d *Driver) Name() string {
	return "kafka"
}

func toProducerMessage(topic string, msg *contracts.BrokerMessage) *sarama.ProducerMessage {
	pm := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(msg.Value),
		Timestamp: time.Now(),
	}
	if len(msg.Key) > 0 {
		pm.Key = sarama.ByteEncoder(msg.Key)
	}
	for _, h := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{
			Key:   []byte(h.Key),
			Value: []byte(h.Value),
		})
	}
	return pm
}

// Publish publishes a message to a topic and waits for the ack.
func (d *Driver) Publish(ctx context.Context, topic string, msg *contracts.BrokerMessage) error {
	if !d.connected {
		return errors.New("kafka: not connected")
	}

	partition, offset, err := d.producer.SendMessage(toProducerMessage(topic, msg))
	if err != nil {
		return err
	}

	msg.Partition = partition
	msg.Offset = offset
	return nil
}

// PublishBatch publishes multiple messages in one producer call.
func (d *Driver) PublishBatch(ctx context.Context, topic string, msgs []*contracts.BrokerMessage) error {
	if !d.connected {
		return errors.New("kafka: not connected")
	}

	batch := make([]*sarama.ProducerMessage, len(msgs))
	for i, msg := range msgs {
		batch[i] = toProducerMessage(topic, msg)
	}
	if err := d.producer.SendMessages(batch); err != nil {
		return err
	}
	for i, pm := range batch {
		msgs[i].Partition = pm.Partition
		msgs[i].Offset = pm.Offset
	}
	return nil
}

// Subscribe joins a consumer group on a topic. Each subscription runs
// its own sarama consumer group; Fetch hands out messages one at a time
// and StoreOffset marks them for the auto-commit ticker.
func (d *Driver) Subscribe(ctx context.Context, group, topic string) (contracts.Subscription, error) {
	if !d.connected {
		return nil, errors.New("kafka: not connected")
	}

	cfg, err := d.buildSaramaConfig()
	if err != nil {
		return nil, err
	}

	cg, err := sarama.NewConsumerGroup(d.config.Brokers, group, cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &groupSubscription{
		cg:       cg,
		topic:    topic,
		cancel:   cancel,
		messages: make(chan *sarama.ConsumerMessage),
		done:     make(chan struct{}),
	}

	go sub.run(runCtx)

	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return sub, nil
}

// groupSubscription bridges sarama's claim callbacks to the pull-based
// Subscription contract.
type groupSubscription struct {
	cg       sarama.ConsumerGroup
	topic    string
	cancel   context.CancelFunc
	messages chan *sarama.ConsumerMessage
	done     chan struct{}

	mu      sync.Mutex
	session sarama.ConsumerGroupSession
	closed  bool
}

// run keeps the group session alive across rebalances.
func (s *groupSubscription) run(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.cg.Consume(ctx, []string{s.topic}, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Second)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (s *groupSubscription) Setup(session sarama.ConsumerGroupSession) error {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (s *groupSubscription) Cleanup(sarama.ConsumerGroupSession) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (s *groupSubscription) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case s.messages <- msg:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// Fetch blocks until a message is available or ctx is cancelled.
func (s *groupSubscription) Fetch(ctx context.Context) (*contracts.BrokerMessage, error) {
	select {
	case msg := <-s.messages:
		out := &contracts.BrokerMessage{
			Topic:     msg.Topic,
			Key:       msg.Key,
			Value:     msg.Value,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Timestamp: msg.Timestamp,
		}
		for _, h := range msg.Headers {
			out.Headers = append(out.Headers, contracts.MessageHeader{
				Key:   string(h.Key),
				Value: string(h.Value),
			})
		}
		return out, nil
	case <-s.done:
		return nil, errors.New("kafka: subscription closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StoreOffset marks the next offset to read. The auto-commit ticker
// flushes it to the group coordinator.
func (s *groupSubscription) StoreOffset(topic string, partition int32, offset int64) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session != nil {
		session.MarkOffset(topic, partition, offset, "")
	}
}

// Pause stops broker-side fetching on all assigned partitions.
func (s *groupSubscription) Pause() {
	s.cg.PauseAll()
}

// Resume re-enables broker-side fetching.
func (s *groupSubscription) Resume() {
	s.cg.ResumeAll()
}

// Close leaves the group.
func (s *groupSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return s.cg.Close()
}

// Ensure Driver implements contracts.Broker
var _ contracts.Broker = (*Driver)(nil)
var _ contracts.Subscription = (*groupSubscription)(nil)
var _ sarama.ConsumerGroupHandler = (*groupSubscription)(nil)
