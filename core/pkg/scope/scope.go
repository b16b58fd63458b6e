// Package scope carries the per-request command registry. Producer and
// consumer operations enqueue commands instead of acting immediately;
// the session drains them around the user's transaction so side effects
// line up with commit.
package scope

import (
	"context"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Command is a deferred operation with two phases. WithinTx runs inside
// the user's transaction, in enqueue order, before commit. AfterCommit
// runs after a successful commit, also in enqueue order. Either phase
// may be a no-op.
type Command interface {
	WithinTx(ctx context.Context, tx contracts.Database) error
	AfterCommit(ctx context.Context) error
}

// inlineCommands is sized for the common request shape of a few
// produces per transaction; larger bursts spill to the heap.
const inlineCommands = 4

// Registry accumulates commands for one scope. Not safe for concurrent
// use: a scope belongs to a single request goroutine.
type Registry struct {
	inline [inlineCommands]Command
	n      int
	spill  []Command
}

// Enqueue appends a command preserving FIFO order.
func (r *Registry) Enqueue(cmd Command) {
	if r.n < inlineCommands {
		r.inline[r.n] = cmd
		r.n++
		return
	}
	r.spill = append(r.spill, cmd)
}

// Len returns the number of pending commands.
func (r *Registry) Len() int { return r.n + len(r.spill) }

// each visits pending commands in enqueue order.
func (r *Registry) each(fn func(Command) error) error {
	for i := 0; i < r.n; i++ {
		if err := fn(r.inline[i]); err != nil {
			return err
		}
	}
	for _, cmd := range r.spill {
		if err := fn(cmd); err != nil {
			return err
		}
	}
	return nil
}

// DrainWithinTx runs the WithinTx phase of every pending command inside
// tx. The first error aborts the drain so the transaction rolls back
// with it.
func (r *Registry) DrainWithinTx(ctx context.Context, tx contracts.Database) error {
	return r.each(func(cmd Command) error {
		return cmd.WithinTx(ctx, tx)
	})
}

// DrainAfterCommit runs the AfterCommit phase of every pending command
// and resets the registry. The first error stops the drain; commands
// behind it stay undone, which is why durable strategies persist their
// work in WithinTx.
func (r *Registry) DrainAfterCommit(ctx context.Context) error {
	err := r.each(func(cmd Command) error {
		return cmd.AfterCommit(ctx)
	})
	r.Reset()
	return err
}

// Reset discards pending commands, for rolled-back scopes.
func (r *Registry) Reset() {
	for i := 0; i < r.n; i++ {
		r.inline[i] = nil
	}
	r.n = 0
	r.spill = nil
}

type ctxKey struct{}

// NewContext attaches the registry to ctx.
func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the registry attached to ctx, nil when the call
// is outside a session scope.
func FromContext(ctx context.Context) *Registry {
	r, _ := ctx.Value(ctxKey{}).(*Registry)
	return r
}
