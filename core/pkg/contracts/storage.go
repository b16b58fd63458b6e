package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned by InboxStore.Mark when the fingerprint is
// already present, meaning the message was processed before.
var ErrDuplicate = errors.New("relay: duplicate message")

// OutboxRecord is one persisted outbox row. Column names are fixed for
// CDC compatibility: Id, AggregateId, Topic, Type, Payload, Headers,
// CreatedAt, PartitionOwner.
type OutboxRecord struct {
	ID             string // uuid v7, time ordered
	AggregateID    string
	Topic          string // never empty
	Type           string // stable type tag for dispatch
	Payload        []byte
	Headers        []byte // json object, string to string
	CreatedAt      time.Time
	PartitionOwner *int // nullable hash bucket for worker ownership
}

// OwnershipFilter scopes which outbox rows a worker may load. The zero
// value means single-node: no filter, all rows.
type OwnershipFilter struct {
	Buckets int // N competing workers; 0 or 1 = single node
	Index   int // this worker's index in [0, Buckets)
}

// SingleNode reports whether the filter selects every row.
func (f OwnershipFilter) SingleNode() bool {
	return f.Buckets <= 1
}

// Owns reports whether a row with the given owner bucket belongs to
// this worker. Rows without an owner fall to index 0.
func (f OwnershipFilter) Owns(owner *int) bool {
	if f.SingleNode() {
		return true
	}
	if owner == nil {
		return f.Index == 0
	}
	return *owner%f.Buckets == f.Index
}

// OutboxStore persists pending messages. Insert must run inside the
// caller's transaction; FetchBatch and Delete run standalone.
type OutboxStore interface {
	// Insert appends rows inside tx, atomically with domain writes.
	Insert(ctx context.Context, tx Database, rows ...*OutboxRecord) error

	// FetchBatch loads up to limit ownership-scoped rows, oldest first.
	// The ownership predicate is pushed into the query so non-owned
	// rows are never loaded.
	FetchBatch(ctx context.Context, filter OwnershipFilter, limit int) ([]*OutboxRecord, error)

	// Delete removes published rows by id in a small standalone
	// transaction.
	Delete(ctx context.Context, ids ...string) error

	// Pending counts unpublished rows (for the outbox.pending gauge).
	Pending(ctx context.Context) (int64, error)
}

// InboxStore persists processed-message fingerprints.
type InboxStore interface {
	// Mark records a fingerprint inside tx. Returns ErrDuplicate when
	// the hash is already present.
	Mark(ctx context.Context, tx Database, hashID uint64, consumedAt time.Time) error

	// DeleteBefore prunes fingerprints older than cutoff. Operators
	// call this on their own schedule; relay never does.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
