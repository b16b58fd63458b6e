// Package config loads relay deployment settings through Viper.
//
// A deployment describes its broker, database, outbox worker, and
// logger in one file (yaml, json, or toml), overridable through
// RELAY_-prefixed environment variables:
//
//	cfg, err := config.NewDriver(config.DefaultConfig())
//	settings, err := config.LoadSettings(cfg)
//
// RELAY_BROKER_PROVIDER=memory overrides broker.provider, and so on
// down the key tree.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config locates the settings file and names the env prefix.
type Config struct {
	ConfigName  string   // file name without extension
	ConfigType  string   // yaml, json, toml
	ConfigFile  string   // full path, overrides name+paths
	ConfigPaths []string // search paths for ConfigName

	// EnvPrefix scopes environment overrides; dots in keys become
	// underscores, so broker.provider reads <prefix>_BROKER_PROVIDER.
	EnvPrefix string

	// WatchConfig reloads the file on change and fires OnChange
	// callbacks. Loaded Settings stay immutable; only callbacks see
	// the new values.
	WatchConfig bool

	Defaults map[string]interface{}
}

// DefaultConfig looks for relay.yaml in the working directory and
// ./configs, with RELAY_ env overrides.
func DefaultConfig() *Config {
	return &Config{
		ConfigName:  "relay",
		ConfigType:  "yaml",
		ConfigPaths: []string{".", "./configs"},
		EnvPrefix:   "RELAY",
	}
}

// Driver is a loaded configuration source.
type Driver struct {
	viper *viper.Viper

	mu       sync.RWMutex
	onChange []func()
}

// NewDriver reads the configuration. A missing file is not an error:
// env overrides and defaults may carry a deployment on their own.
func NewDriver(cfg *Config) (*Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	v := viper.New()
	if cfg.ConfigFile != "" {
		v.SetConfigFile(cfg.ConfigFile)
	} else {
		v.SetConfigName(cfg.ConfigName)
		v.SetConfigType(cfg.ConfigType)
		for _, path := range cfg.ConfigPaths {
			v.AddConfigPath(path)
		}
	}
	if cfg.ConfigType != "" {
		v.SetConfigType(cfg.ConfigType)
	}

	if cfg.EnvPrefix != "" {
		v.SetEnvPrefix(cfg.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range cfg.Defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	d := &Driver{viper: v}
	if cfg.WatchConfig {
		v.OnConfigChange(func(fsnotify.Event) {
			d.mu.RLock()
			callbacks := append([]func(){}, d.onChange...)
			d.mu.RUnlock()
			for _, callback := range callbacks {
				callback()
			}
		})
		v.WatchConfig()
	}
	return d, nil
}

// Get returns the raw value for a dotted key.
func (d *Driver) Get(key string) interface{} { return d.viper.Get(key) }

func (d *Driver) GetString(key string) string        { return d.viper.GetString(key) }
func (d *Driver) GetInt(key string) int              { return d.viper.GetInt(key) }
func (d *Driver) GetBool(key string) bool            { return d.viper.GetBool(key) }
func (d *Driver) GetDuration(key string) time.Duration {
	return d.viper.GetDuration(key)
}
func (d *Driver) GetStringSlice(key string) []string { return d.viper.GetStringSlice(key) }

// IsSet reports whether the key came from file, env, Set, or a default.
func (d *Driver) IsSet(key string) bool { return d.viper.IsSet(key) }

// Set overrides a value, above file and env in precedence. Meant for
// tests and programmatic setup.
func (d *Driver) Set(key string, value interface{}) { d.viper.Set(key, value) }

// SetDefault sets the fallback used when no source provides the key.
func (d *Driver) SetDefault(key string, value interface{}) { d.viper.SetDefault(key, value) }

// Unmarshal decodes the whole tree into a mapstructure-tagged struct.
func (d *Driver) Unmarshal(rawVal interface{}) error { return d.viper.Unmarshal(rawVal) }

// UnmarshalKey decodes one subtree, e.g. "outbox" into OutboxSettings.
func (d *Driver) UnmarshalKey(key string, rawVal interface{}) error {
	return d.viper.UnmarshalKey(key, rawVal)
}

// Sub scopes the driver to a subtree. Returns nil when the key does not
// resolve to a map.
func (d *Driver) Sub(key string) *Driver {
	sub := d.viper.Sub(key)
	if sub == nil {
		return nil
	}
	return &Driver{viper: sub}
}

// Reload re-reads the file in place.
func (d *Driver) Reload() error { return d.viper.ReadInConfig() }

// OnChange registers a callback fired after each watched-file reload.
func (d *Driver) OnChange(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, callback)
}

// Viper exposes the underlying instance for settings viper offers that
// the driver does not wrap.
func (d *Driver) Viper() *viper.Viper { return d.viper }
