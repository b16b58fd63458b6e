// Package zap is the production contracts.Logger for relay, built on
// go.uber.org/zap.
//
// Usage:
//
//	import (
//	    logzap "github.com/madcok-co/relay/contrib/logger/zap"
//	)
//
//	driver := logzap.NewDriver()
//	engine, err := relay.New(relay.WithBroker(b), relay.WithLogger(driver))
//
// WithContext correlates log lines with the active trace: when the ctx
// carries a recorded span, trace_id and span_id fields are attached.
package zap

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/madcok-co/relay/contrib/config"
	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Config selects level, encoder, and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or a file path
}

// DefaultConfig is JSON at info level on stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:  contracts.LogLevelInfo,
		Format: "json",
		Output: "stdout",
	}
}

// Driver implements contracts.Logger over a zap core.
type Driver struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewDriver builds the default production logger.
func NewDriver() *Driver {
	return NewDriverWithConfig(DefaultConfig())
}

// NewDriverFromSettings builds the driver from loaded relay settings.
func NewDriverFromSettings(s config.LoggerSettings) *Driver {
	return NewDriverWithConfig(&Config{Level: s.Level, Format: s.Format, Output: s.Output})
}

// NewDriverWithConfig builds a driver with caller annotation and
// stacktraces from error level up.
func NewDriverWithConfig(cfg *Config) *Driver {
	core := zapcore.NewCore(newEncoder(cfg.Format), newSyncer(cfg.Output), parseLevel(cfg.Level))
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return NewDriverWithLogger(logger)
}

// NewDriverWithLogger wraps an existing zap logger.
func NewDriverWithLogger(logger *zap.Logger) *Driver {
	return &Driver{logger: logger, sugar: logger.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case contracts.LogLevelDebug:
		return zapcore.DebugLevel
	case contracts.LogLevelWarn:
		return zapcore.WarnLevel
	case contracts.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func newSyncer(output string) zapcore.WriteSyncer {
	switch output {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		// Fall back to stderr rather than dropping logs.
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(file)
}

// Logger exposes the underlying zap logger.
func (d *Driver) Logger() *zap.Logger { return d.logger }

func (d *Driver) Debug(msg string, fields ...any) { d.sugar.Debugw(msg, fields...) }
func (d *Driver) Info(msg string, fields ...any)  { d.sugar.Infow(msg, fields...) }
func (d *Driver) Warn(msg string, fields ...any)  { d.sugar.Warnw(msg, fields...) }
func (d *Driver) Error(msg string, fields ...any) { d.sugar.Errorw(msg, fields...) }
func (d *Driver) Fatal(msg string, fields ...any) { d.sugar.Fatalw(msg, fields...) }

// WithContext attaches the active span's coordinates, if any.
func (d *Driver) WithContext(ctx context.Context) contracts.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return d
	}
	return d.WithFields(
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

// WithFields returns a logger carrying the key/value pairs on every
// subsequent line.
func (d *Driver) WithFields(fields ...any) contracts.Logger {
	return &Driver{logger: d.logger, sugar: d.sugar.With(fields...)}
}

// WithError attaches the error message as a field.
func (d *Driver) WithError(err error) contracts.Logger {
	return &Driver{logger: d.logger, sugar: d.sugar.With("error", err.Error())}
}

// Named returns a sub-logger with a dotted name suffix.
func (d *Driver) Named(name string) contracts.Logger {
	named := d.logger.Named(name)
	return &Driver{logger: named, sugar: named.Sugar()}
}

// Sync flushes buffered entries.
func (d *Driver) Sync() error { return d.logger.Sync() }

var _ contracts.Logger = (*Driver)(nil)
