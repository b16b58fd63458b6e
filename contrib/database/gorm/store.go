package gorm

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// outboxRow maps the outbox table. Column names are fixed so CDC
// connectors (Debezium and friends) can read the table without a
// transform step.
type outboxRow struct {
	ID             string    `gorm:"column:Id;primaryKey;size:36"`
	AggregateID    string    `gorm:"column:AggregateId;size:255"`
	Topic          string    `gorm:"column:Topic;size:255;not null"`
	Type           string    `gorm:"column:Type;size:255;not null"`
	Payload        []byte    `gorm:"column:Payload"`
	Headers        []byte    `gorm:"column:Headers"`
	CreatedAt      time.Time `gorm:"column:CreatedAt;not null;index:idx_relay_outbox_created;index:idx_relay_outbox_owner_created,priority:2"`
	PartitionOwner *int      `gorm:"column:PartitionOwner;index:idx_relay_outbox_owner_created,priority:1"`
}

func (outboxRow) TableName() string { return "relay_outbox" }

// inboxRow maps the inbox table. The primary key is the message
// fingerprint; the unique constraint is what makes Mark idempotent.
// The fingerprint is stored two's-complement as a signed BIGINT:
// database/sql rejects uint64 values with the high bit set, which half
// of real hash values have.
type inboxRow struct {
	HashID     int64     `gorm:"column:Id;primaryKey;autoIncrement:false"`
	ConsumedAt time.Time `gorm:"column:ConsumedAt;not null"`
}

func (inboxRow) TableName() string { return "relay_inbox" }

// Store implements the outbox and inbox stores over a GORM driver.
type Store struct {
	driver *Driver
}

// NewStore creates a store over the driver.
func NewStore(d *Driver) *Store {
	return &Store{driver: d}
}

// AutoMigrate creates the outbox and inbox tables.
func (s *Store) AutoMigrate() error {
	return s.driver.db.AutoMigrate(&outboxRow{}, &inboxRow{})
}

// handle resolves the GORM handle for tx: the transaction-scoped one
// when tx came from this driver family, the root handle otherwise.
func (s *Store) handle(tx contracts.Database) *gorm.DB {
	if d, ok := tx.(*Driver); ok {
		return d.db
	}
	return s.driver.db
}

// ============ contracts.OutboxStore ============

// Insert appends rows inside the caller's transaction.
func (s *Store) Insert(ctx context.Context, tx contracts.Database, rows ...*contracts.OutboxRecord) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]outboxRow, len(rows))
	for i, rec := range rows {
		models[i] = outboxRow{
			ID:             rec.ID,
			AggregateID:    rec.AggregateID,
			Topic:          rec.Topic,
			Type:           rec.Type,
			Payload:        rec.Payload,
			Headers:        rec.Headers,
			CreatedAt:      rec.CreatedAt,
			PartitionOwner: rec.PartitionOwner,
		}
	}
	return s.handle(tx).WithContext(ctx).Create(&models).Error
}

// FetchBatch loads up to limit owned rows, oldest first. The v7 ids
// sort by creation time, so ordering by Id preserves insert order. The
// ownership predicate runs in the database; non-owned rows are never
// loaded.
func (s *Store) FetchBatch(ctx context.Context, filter contracts.OwnershipFilter, limit int) ([]*contracts.OutboxRecord, error) {
	// Mixed-case CDC columns must go through the dialect quoter:
	// Postgres folds bare identifiers to lowercase.
	q := s.driver.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "Id"}}).
		Limit(limit)
	if !filter.SingleNode() {
		q = q.Where(clause.Expr{
			SQL:  "COALESCE(?, 0) % ? = ?",
			Vars: []interface{}{clause.Column{Name: "PartitionOwner"}, filter.Buckets, filter.Index},
		})
	}

	var models []outboxRow
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]*contracts.OutboxRecord, len(models))
	for i, m := range models {
		out[i] = &contracts.OutboxRecord{
			ID:             m.ID,
			AggregateID:    m.AggregateID,
			Topic:          m.Topic,
			Type:           m.Type,
			Payload:        m.Payload,
			Headers:        m.Headers,
			CreatedAt:      m.CreatedAt,
			PartitionOwner: m.PartitionOwner,
		}
	}
	return out, nil
}

// Delete removes published rows by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return s.driver.db.WithContext(ctx).
		Where(clause.IN{Column: clause.Column{Name: "Id"}, Values: vals}).
		Delete(&outboxRow{}).Error
}

// Pending counts unpublished rows.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	var count int64
	err := s.driver.db.WithContext(ctx).Model(&outboxRow{}).Count(&count).Error
	return count, err
}

// ============ contracts.InboxStore ============

// Mark records a fingerprint inside the caller's transaction. A primary
// key violation means the message was processed before and surfaces as
// contracts.ErrDuplicate.
func (s *Store) Mark(ctx context.Context, tx contracts.Database, hashID uint64, consumedAt time.Time) error {
	err := s.handle(tx).WithContext(ctx).Create(&inboxRow{
		HashID:     int64(hashID),
		ConsumedAt: consumedAt,
	}).Error
	if err != nil && isDuplicateErr(err) {
		return contracts.ErrDuplicate
	}
	return err
}

// DeleteBefore prunes fingerprints consumed before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.driver.db.WithContext(ctx).
		Where(clause.Lt{Column: clause.Column{Name: "ConsumedAt"}, Value: cutoff}).
		Delete(&inboxRow{})
	return res.RowsAffected, res.Error
}

// isDuplicateErr detects a unique constraint violation. GORM translates
// these on drivers configured with TranslateError; the string check
// covers sqlite without it.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry")
}

var (
	_ contracts.OutboxStore = (*Store)(nil)
	_ contracts.InboxStore  = (*Store)(nil)
)
