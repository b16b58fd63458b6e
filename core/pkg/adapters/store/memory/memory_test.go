package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

func row(id, aggregate string, owner *int) *contracts.OutboxRecord {
	return &contracts.OutboxRecord{
		ID:             id,
		AggregateID:    aggregate,
		Topic:          "orders",
		Type:           "OrderPlaced",
		Payload:        []byte(`{}`),
		CreatedAt:      time.Now().UTC(),
		PartitionOwner: owner,
	}
}

func TestTransaction(t *testing.T) {
	t.Run("commit applies staged writes", func(t *testing.T) {
		s := New()
		err := s.Transaction(context.Background(), func(tx contracts.Database) error {
			if err := s.Insert(context.Background(), tx, row("01", "a", nil)); err != nil {
				return err
			}
			return s.Mark(context.Background(), tx, 7, time.Now())
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}

		if len(s.OutboxRows()) != 1 {
			t.Error("committed row missing")
		}
		if !s.HasMark(7) {
			t.Error("committed mark missing")
		}
	})

	t.Run("rollback discards staged writes", func(t *testing.T) {
		s := New()
		boom := errors.New("boom")
		err := s.Transaction(context.Background(), func(tx contracts.Database) error {
			s.Insert(context.Background(), tx, row("01", "a", nil))
			s.Mark(context.Background(), tx, 7, time.Now())
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if len(s.OutboxRows()) != 0 {
			t.Error("rolled back row should be gone")
		}
		if s.HasMark(7) {
			t.Error("rolled back mark should be gone")
		}
	})

	t.Run("nested transactions join the same stage", func(t *testing.T) {
		s := New()
		err := s.Transaction(context.Background(), func(tx contracts.Database) error {
			return tx.Transaction(context.Background(), func(inner contracts.Database) error {
				return s.Insert(context.Background(), inner, row("01", "a", nil))
			})
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		if len(s.OutboxRows()) != 1 {
			t.Error("nested insert lost")
		}
	})

	t.Run("committed marks are visible inside transactions", func(t *testing.T) {
		s := New()
		if err := s.Mark(context.Background(), nil, 7, time.Now()); err != nil {
			t.Fatalf("direct mark failed: %v", err)
		}

		err := s.Transaction(context.Background(), func(tx contracts.Database) error {
			return s.Mark(context.Background(), tx, 7, time.Now())
		})
		if !errors.Is(err, contracts.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestFetchBatch(t *testing.T) {
	t.Run("oldest first, limited", func(t *testing.T) {
		s := New()
		// Lexicographic ids stand in for time-ordered v7 uuids.
		s.Insert(context.Background(), nil, row("03", "a", nil), row("01", "a", nil), row("02", "a", nil))

		rows, err := s.FetchBatch(context.Background(), contracts.OwnershipFilter{}, 2)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if len(rows) != 2 || rows[0].ID != "01" || rows[1].ID != "02" {
			t.Errorf("unexpected batch: %+v", rows)
		}
	})

	t.Run("ownership filter", func(t *testing.T) {
		s := New()
		zero, one := 0, 1
		s.Insert(context.Background(), nil, row("01", "a", &zero), row("02", "b", &one), row("03", "", nil))

		rows, err := s.FetchBatch(context.Background(), contracts.OwnershipFilter{Buckets: 2, Index: 0}, 10)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		// Bucket 0 plus the ownerless row.
		if len(rows) != 2 || rows[0].ID != "01" || rows[1].ID != "03" {
			t.Errorf("unexpected owned rows: %+v", rows)
		}
	})
}

func TestDelete(t *testing.T) {
	s := New()
	s.Insert(context.Background(), nil, row("01", "a", nil), row("02", "a", nil))

	if err := s.Delete(context.Background(), "01"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	rows := s.OutboxRows()
	if len(rows) != 1 || rows[0].ID != "02" {
		t.Errorf("unexpected rows after delete: %+v", rows)
	}

	if n, err := s.Pending(context.Background()); err != nil || n != 1 {
		t.Errorf("expected 1 pending, got %d (%v)", n, err)
	}
}

func TestMark(t *testing.T) {
	s := New()

	if err := s.Mark(context.Background(), nil, 42, time.Now()); err != nil {
		t.Fatalf("first mark failed: %v", err)
	}
	if err := s.Mark(context.Background(), nil, 42, time.Now()); !errors.Is(err, contracts.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	t.Run("duplicate within one transaction", func(t *testing.T) {
		err := s.Transaction(context.Background(), func(tx contracts.Database) error {
			if err := s.Mark(context.Background(), tx, 43, time.Now()); err != nil {
				return err
			}
			return s.Mark(context.Background(), tx, 43, time.Now())
		})
		if !errors.Is(err, contracts.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestDeleteBefore(t *testing.T) {
	s := New()
	old := time.Now().Add(-100 * time.Hour)
	s.Mark(context.Background(), nil, 1, old)
	s.Mark(context.Background(), nil, 2, time.Now())

	n, err := s.DeleteBefore(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete before failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned mark, got %d", n)
	}
	if s.HasMark(1) || !s.HasMark(2) {
		t.Error("wrong mark pruned")
	}
}
