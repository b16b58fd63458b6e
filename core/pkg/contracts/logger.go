package contracts

import "context"

// Logger adalah generic interface untuk logging
// Implementasi bisa zap, zerolog, slog, dll
type Logger interface {
	// Log levels
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)

	// With context - untuk tracing/correlation ID
	WithContext(ctx context.Context) Logger

	// With fields - untuk menambahkan fields ke semua log berikutnya
	WithFields(fields ...any) Logger

	// With error - untuk attach error ke log
	WithError(err error) Logger

	// Named logger - untuk sub-logger dengan prefix
	Named(name string) Logger

	// Sync flushes any buffered log entries
	Sync() error
}

// LogLevel constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)
