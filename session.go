package relay

import (
	"context"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/scope"
)

// Session runs user transactions with a command registry attached.
// Produce calls made inside the transaction enqueue their work instead
// of acting immediately; outbox rows are written through the same
// transaction as the caller's domain writes, and broker publishes only
// happen after a successful commit.
type Session struct {
	db contracts.Database
}

// NewSession builds a session over the transaction boundary. The engine
// constructs sessions for you; this is for tests and custom wiring.
func NewSession(db contracts.Database) *Session {
	return &Session{db: db}
}

// Transaction executes fn inside a database transaction. Commands
// enqueued by fn run their WithinTx phase in the same transaction after
// fn returns, then the transaction commits, then AfterCommit phases run
// in enqueue order. Any error before commit rolls everything back and
// discards the pending commands.
func (s *Session) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	reg := &scope.Registry{}
	ctx = scope.NewContext(ctx, reg)

	err := s.db.Transaction(ctx, func(tx contracts.Database) error {
		txCtx := scope.WithTx(ctx, tx)
		if err := fn(txCtx); err != nil {
			return err
		}
		return reg.DrainWithinTx(txCtx, tx)
	})
	if err != nil {
		reg.Reset()
		return err
	}
	return reg.DrainAfterCommit(ctx)
}
