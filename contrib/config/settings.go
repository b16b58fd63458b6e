package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the file-level shape of a relay deployment. Load it from
// a config file or environment, then hand the pieces to the drivers.
type Settings struct {
	Broker   BrokerSettings   `mapstructure:"broker"`
	Database DatabaseSettings `mapstructure:"database"`
	Outbox   OutboxSettings   `mapstructure:"outbox"`
	Logger   LoggerSettings   `mapstructure:"logger"`
}

// BrokerSettings selects and configures the broker driver.
type BrokerSettings struct {
	Provider string   `mapstructure:"provider" validate:"required,oneof=kafka memory"`
	Brokers  []string `mapstructure:"brokers" validate:"required_if=Provider kafka,omitempty,min=1,dive,hostname_port"`
	ClientID string   `mapstructure:"client_id"`
}

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Driver  string `mapstructure:"driver" validate:"required,oneof=postgres mysql sqlite memory"`
	DSN     string `mapstructure:"dsn" validate:"required_unless=Driver memory"`
	MaxOpen int    `mapstructure:"max_open_conns" validate:"omitempty,gte=1"`
	MaxIdle int    `mapstructure:"max_idle_conns" validate:"omitempty,gte=0"`
	MaxLife int    `mapstructure:"max_lifetime_seconds" validate:"omitempty,gte=0"`
	Migrate bool   `mapstructure:"auto_migrate"`
}

// OutboxSettings configures the polling worker.
type OutboxSettings struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"omitempty,gt=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"omitempty,gte=1"`
	Buckets      int           `mapstructure:"buckets" validate:"omitempty,gte=0"`
	Index        int           `mapstructure:"index" validate:"omitempty,gte=0"`
}

// LoggerSettings configures the structured logger.
type LoggerSettings struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	Output string `mapstructure:"output"`
}

var validate = validator.New()

// LoadSettings unmarshals and validates the relay settings from the
// driver's current configuration.
func LoadSettings(d *Driver) (*Settings, error) {
	var s Settings
	if err := d.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal settings: %w", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}
	return &s, nil
}
