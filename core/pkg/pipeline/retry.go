package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// Retry returns a middleware retrying downstream failures with
// exponential backoff capped at MaxBackoff. Cancellation is never
// retried. Returns nil when the stage is disabled.
func Retry[T any](s RetrySettings) Middleware[T] {
	if !s.Enabled {
		return nil
	}
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 1
	}

	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			backoff := s.InitialBackoff
			var lastErr error

			for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
				lastErr = next(ctx, env)
				if lastErr == nil {
					return nil
				}
				if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
					return lastErr
				}
				if attempt == s.MaxAttempts {
					break
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}

				backoff *= 2
				if s.MaxBackoff > 0 && backoff > s.MaxBackoff {
					backoff = s.MaxBackoff
				}
			}

			return fmt.Errorf("pipeline: %d attempts exhausted: %w", s.MaxAttempts, lastErr)
		}
	}
}
