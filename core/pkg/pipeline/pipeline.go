// Package pipeline composes middleware chains over envelopes. Chains
// are built once at startup; stages whose settings are disabled are
// omitted from the chain, not bypassed per message.
package pipeline

import (
	"context"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// Handler processes an envelope. Returning without calling anything
// downstream short-circuits the chain.
type Handler[T any] func(ctx context.Context, env *envelope.Envelope[T]) error

// Middleware wraps a handler, same shape as an HTTP middleware chain.
type Middleware[T any] func(next Handler[T]) Handler[T]

// Chain builds a handler from stages around a terminal. stages[0] is
// the outermost. Nil stages (disabled at build time) are skipped.
func Chain[T any](terminal Handler[T], stages ...Middleware[T]) Handler[T] {
	h := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] == nil {
			continue
		}
		h = stages[i](h)
	}
	return h
}

// Drop is a terminal that discards the envelope. Used when a chain is
// built only for its side effects.
func Drop[T any]() Handler[T] {
	return func(ctx context.Context, env *envelope.Envelope[T]) error {
		return nil
	}
}
