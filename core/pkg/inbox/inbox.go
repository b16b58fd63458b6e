// Package inbox deduplicates consumed messages. Each message is reduced
// to a 64-bit fingerprint of its type tag and a user-chosen dedup value;
// marking the fingerprint a second time fails the store's uniqueness
// constraint and the handler is skipped.
package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/envelope"
	"github.com/madcok-co/relay/core/pkg/pipeline"
	"github.com/madcok-co/relay/core/pkg/scope"
)

// fingerprintScratch keeps the common case off the heap. Tag plus dedup
// value rarely exceed a few dozen bytes.
const fingerprintScratch = 512

// Fingerprint hashes the type tag and dedup value into the inbox key.
// Salting with the tag keeps identical dedup values of different types
// from colliding.
func Fingerprint(tag, dedup string) uint64 {
	n := len(tag) + len(dedup)
	var scratch [fingerprintScratch]byte
	var buf []byte
	if n <= fingerprintScratch {
		buf = scratch[:0]
	} else {
		buf = make([]byte, 0, n)
	}
	buf = append(buf, tag...)
	buf = append(buf, dedup...)
	return xxhash.Sum64(buf)
}

// Guard marks fingerprints against an InboxStore.
type Guard struct {
	store contracts.InboxStore
	now   func() time.Time
}

// NewGuard builds a guard over the store.
func NewGuard(store contracts.InboxStore) *Guard {
	return &Guard{store: store, now: time.Now}
}

// Mark records the fingerprint, joining the transaction in ctx when one
// is active. Returns contracts.ErrDuplicate when already seen.
func (g *Guard) Mark(ctx context.Context, fp uint64) error {
	return g.store.Mark(ctx, scope.TxFromContext(ctx), fp, g.now().UTC())
}

// Sweep deletes marks older than retention and reports how many went.
func (g *Guard) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return g.store.DeleteBefore(ctx, g.now().UTC().Add(-retention))
}

// Stage returns the consume middleware for a topic with the inbox on.
// Duplicates are counted and dropped before the handler; the mark joins
// the handler's transaction so a rollback also unmarks.
func Stage[T any](g *Guard, tag string, dedup func(*T) string, metrics contracts.Metrics) pipeline.Middleware[T] {
	return func(next pipeline.Handler[T]) pipeline.Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			fp := Fingerprint(tag, dedup(env.Message))
			err := g.Mark(ctx, fp)
			if errors.Is(err, contracts.ErrDuplicate) {
				if metrics != nil {
					metrics.Counter(contracts.MetricInboxDuplicates,
						contracts.T(contracts.TagTopic, env.Topic)).Inc()
				}
				return nil
			}
			if err != nil {
				return err
			}
			return next(ctx, env)
		}
	}
}
