package pipeline

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// Breaker returns a circuit-breaker middleware. While the breaker is
// open, calls fail fast with gobreaker.ErrOpenState without touching
// the broker. Returns nil when disabled.
func Breaker[T any](name string, s BreakerSettings) Middleware[T] {
	if !s.Enabled {
		return nil
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxCalls,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
	})

	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			_, err := cb.Execute(func() (any, error) {
				return nil, next(ctx, env)
			})
			return err
		}
	}
}
