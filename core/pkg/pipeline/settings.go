package pipeline

import "time"

// RetrySettings configures the retry stage.
type RetrySettings struct {
	Enabled        bool
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"omitempty,gte=1,lte=100"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"omitempty,gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"omitempty,gtefield=InitialBackoff"`
}

// DefaultRetrySettings returns the stage defaults used when retry is
// enabled without explicit values.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		Enabled:        true,
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// BreakerSettings configures the circuit breaker stage.
type BreakerSettings struct {
	Enabled          bool
	ConsecutiveFails uint32        `mapstructure:"consecutive_fails" validate:"omitempty,gte=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" validate:"omitempty,gt=0"`
	HalfOpenMaxCalls uint32        `mapstructure:"half_open_max_calls" validate:"omitempty,gte=1"`
}

// DefaultBreakerSettings returns the stage defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Enabled:          true,
		ConsecutiveFails: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// ThrottleSettings configures the rate-limit stage.
type ThrottleSettings struct {
	Enabled bool
	Rate    float64 `mapstructure:"rate" validate:"omitempty,gt=0"`
	Burst   int     `mapstructure:"burst" validate:"omitempty,gte=1"`
}

// DefaultThrottleSettings returns the stage defaults.
func DefaultThrottleSettings() ThrottleSettings {
	return ThrottleSettings{Enabled: true, Rate: 1000, Burst: 100}
}

// BatchSettings configures publish batching.
type BatchSettings struct {
	Enabled       bool
	Size          int           `mapstructure:"size" validate:"omitempty,gte=2,lte=10000"`
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"omitempty,gt=0"`
}

// DefaultBatchSettings returns the stage defaults.
func DefaultBatchSettings() BatchSettings {
	return BatchSettings{Enabled: true, Size: 100, FlushInterval: 10 * time.Millisecond}
}

// CompressSettings configures payload compression.
type CompressSettings struct {
	Enabled bool
	Level   int `mapstructure:"level" validate:"omitempty,gte=0,lte=11"`
	// MinSize skips compression for payloads below this many bytes.
	MinSize int `mapstructure:"min_size" validate:"omitempty,gte=0"`
}

// DefaultCompressSettings returns the stage defaults.
func DefaultCompressSettings() CompressSettings {
	return CompressSettings{Enabled: true, Level: 4, MinSize: 1024}
}
