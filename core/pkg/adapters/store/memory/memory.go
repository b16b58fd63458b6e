// Package memory is an in-memory store untuk testing dan development.
// It implements the transaction boundary, the outbox store, and the
// inbox store in one type, with staged writes so a rollback discards
// outbox rows and inbox marks exactly like a relational transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Store holds outbox rows and inbox marks behind one mutex.
type Store struct {
	mu     sync.Mutex
	outbox []*contracts.OutboxRecord
	inbox  map[uint64]time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{inbox: make(map[uint64]time.Time)}
}

// ============ contracts.Database ============

// Transaction stages writes made through the passed handle and applies
// them atomically when fn returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(tx contracts.Database) error) error {
	tx := &Tx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for fp := range tx.marks {
		if _, ok := s.inbox[fp]; ok {
			return contracts.ErrDuplicate
		}
	}
	s.outbox = append(s.outbox, tx.rows...)
	for fp, at := range tx.marks {
		s.inbox[fp] = at
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Tx stages writes for one transaction. It implements the transaction
// boundary so nested Transaction calls join the same stage.
type Tx struct {
	store *Store
	rows  []*contracts.OutboxRecord
	marks map[uint64]time.Time
}

func (t *Tx) Transaction(ctx context.Context, fn func(tx contracts.Database) error) error {
	return fn(t)
}

func (t *Tx) Ping(ctx context.Context) error { return nil }

func (t *Tx) Close() error { return nil }

// ============ contracts.OutboxStore ============

// Insert appends rows, staged when tx belongs to this store.
func (s *Store) Insert(ctx context.Context, tx contracts.Database, rows ...*contracts.OutboxRecord) error {
	if t, ok := tx.(*Tx); ok && t.store == s {
		t.rows = append(t.rows, rows...)
		return nil
	}
	s.mu.Lock()
	s.outbox = append(s.outbox, rows...)
	s.mu.Unlock()
	return nil
}

// FetchBatch returns up to limit owned rows, oldest first. The v7 row
// ids sort by creation time, so ordering by id keeps per-aggregate
// insert order.
func (s *Store) FetchBatch(ctx context.Context, filter contracts.OwnershipFilter, limit int) ([]*contracts.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*contracts.OutboxRecord, 0, limit)
	for _, rec := range s.outbox {
		if filter.Owns(rec.PartitionOwner) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes published rows by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outbox[:0]
	for _, rec := range s.outbox {
		if _, ok := drop[rec.ID]; !ok {
			kept = append(kept, rec)
		}
	}
	s.outbox = kept
	return nil
}

// Pending counts unpublished rows.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.outbox)), nil
}

// ============ contracts.InboxStore ============

// Mark records a fingerprint, staged when tx belongs to this store.
// Returns contracts.ErrDuplicate when the hash was seen before, in the
// committed state or earlier in the same transaction.
func (s *Store) Mark(ctx context.Context, tx contracts.Database, hashID uint64, consumedAt time.Time) error {
	s.mu.Lock()
	_, dup := s.inbox[hashID]
	s.mu.Unlock()
	if dup {
		return contracts.ErrDuplicate
	}

	if t, ok := tx.(*Tx); ok && t.store == s {
		if t.marks == nil {
			t.marks = make(map[uint64]time.Time)
		}
		if _, ok := t.marks[hashID]; ok {
			return contracts.ErrDuplicate
		}
		t.marks[hashID] = consumedAt
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbox[hashID]; ok {
		return contracts.ErrDuplicate
	}
	s.inbox[hashID] = consumedAt
	return nil
}

// DeleteBefore prunes marks consumed before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for fp, at := range s.inbox {
		if at.Before(cutoff) {
			delete(s.inbox, fp)
			n++
		}
	}
	return n, nil
}

// ============ Test helpers ============

// OutboxRows returns a snapshot of pending rows.
func (s *Store) OutboxRows() []*contracts.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*contracts.OutboxRecord, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// HasMark reports whether a fingerprint is committed.
func (s *Store) HasMark(hashID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inbox[hashID]
	return ok
}

var (
	_ contracts.Database    = (*Store)(nil)
	_ contracts.Database    = (*Tx)(nil)
	_ contracts.OutboxStore = (*Store)(nil)
	_ contracts.InboxStore  = (*Store)(nil)
)
