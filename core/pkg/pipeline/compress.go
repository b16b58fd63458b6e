package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

const compressionBrotli = "br"

// Compress returns a producer middleware that brotli-compresses the
// serialized payload and marks it with the $compression header.
// Payloads below MinSize pass through untouched. Returns nil when
// disabled.
func Compress[T any](s CompressSettings) Middleware[T] {
	if !s.Enabled {
		return nil
	}

	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			if len(env.Payload) >= s.MinSize {
				var buf bytes.Buffer
				w := brotli.NewWriterLevel(&buf, s.Level)
				if _, err := w.Write(env.Payload); err != nil {
					return fmt.Errorf("pipeline: compress: %w", err)
				}
				if err := w.Close(); err != nil {
					return fmt.Errorf("pipeline: compress: %w", err)
				}
				env.Payload = buf.Bytes()
				env.Headers.Set(envelope.HeaderCompression, compressionBrotli)
			}
			return next(ctx, env)
		}
	}
}

// Decompress returns the consumer-side inverse of Compress. It always
// participates in the consume chain when compression is enabled for
// the topic; messages without a $compression header pass through.
func Decompress[T any](s CompressSettings) Middleware[T] {
	if !s.Enabled {
		return nil
	}

	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, env *envelope.Envelope[T]) error {
			if env.Headers.Get(envelope.HeaderCompression) == compressionBrotli {
				r := brotli.NewReader(bytes.NewReader(env.Payload))
				raw, err := io.ReadAll(r)
				if err != nil {
					return fmt.Errorf("pipeline: decompress: %w", err)
				}
				env.Payload = raw
				env.Headers.Delete(envelope.HeaderCompression)
			}
			return next(ctx, env)
		}
	}
}
