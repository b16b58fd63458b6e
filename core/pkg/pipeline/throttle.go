package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// Throttle returns a rate-limiting middleware. Callers block until the
// limiter grants a slot or ctx is cancelled. Returns nil when disabled.
func Throttle[T any](s ThrottleSettings) Middleware[T] {
	if !s.Enabled {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(s.Rate), s.Burst)

	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			return next(ctx, env)
		}
	}
}
