// Package redis provides a Redis implementation of the relay InboxStore
// interface. Fingerprints are stored as SET NX keys with a TTL, so
// retention is handled by Redis itself and DeleteBefore is rarely
// needed.
//
// Unlike the relational store, marks here cannot join the handler's
// database transaction: a handler rollback leaves the mark behind and
// the redelivered message is dropped as a duplicate. Use it for
// handlers whose effects are themselves idempotent, or when there is no
// relational database to share a transaction with.
//
// Usage:
//
//	import (
//	    "github.com/madcok-co/relay/contrib/inbox/redis"
//	    goredis "github.com/redis/go-redis/v9"
//	)
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	driver := redis.NewDriver(rdb, redis.WithRetention(72*time.Hour))
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// DefaultRetention keeps marks for three days, covering typical broker
// redelivery windows.
const DefaultRetention = 72 * time.Hour

// Driver implements contracts.InboxStore using Redis
type Driver struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// Option configures the Driver
type Option func(*Driver)

// WithPrefix sets a key prefix for all inbox keys
func WithPrefix(prefix string) Option {
	return func(d *Driver) {
		d.prefix = prefix
	}
}

// WithRetention sets the TTL on marks
func WithRetention(retention time.Duration) Option {
	return func(d *Driver) {
		d.retention = retention
	}
}

// NewDriver creates a new Redis inbox driver
func NewDriver(client *redis.Client, opts ...Option) *Driver {
	d := &Driver{
		client:    client,
		prefix:    "relay:inbox",
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Client returns the underlying Redis client
func (d *Driver) Client() *redis.Client {
	return d.client
}

func (d *Driver) key(hashID uint64) string {
	return d.prefix + ":" + strconv.FormatUint(hashID, 16)
}

// Mark records a fingerprint with SET NX. The tx parameter is ignored;
// see the package comment for the consequences.
func (d *Driver) Mark(ctx context.Context, tx contracts.Database, hashID uint64, consumedAt time.Time) error {
	ok, err := d.client.SetNX(ctx, d.key(hashID), consumedAt.UnixMilli(), d.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return contracts.ErrDuplicate
	}
	return nil
}

// DeleteBefore scans for marks consumed before cutoff and removes them.
// TTL expiry normally makes this unnecessary.
func (d *Driver) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	var cursor uint64
	cutoffMilli := cutoff.UnixMilli()

	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.prefix+":*", 100).Result()
		if err != nil {
			return deleted, err
		}
		for _, key := range keys {
			val, err := d.client.Get(ctx, key).Int64()
			if err != nil {
				continue
			}
			if val < cutoffMilli {
				if d.client.Del(ctx, key).Err() == nil {
					deleted++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ensure Driver implements contracts.InboxStore
var _ contracts.InboxStore = (*Driver)(nil)
