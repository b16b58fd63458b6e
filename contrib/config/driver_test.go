package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const deploymentYAML = `
broker:
  provider: kafka
  brokers:
    - kafka-1:9092
    - kafka-2:9092
  client_id: billing
database:
  driver: postgres
  dsn: postgres://relay:relay@db:5432/relay
  auto_migrate: true
outbox:
  poll_interval: 250ms
  batch_size: 50
logger:
  level: debug
  format: console
`

func writeDeployment(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func openDeployment(t *testing.T, content string) *Driver {
	t.Helper()
	d, err := NewDriver(&Config{ConfigFile: writeDeployment(t, content), ConfigType: "yaml", EnvPrefix: "RELAY"})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return d
}

func TestNewDriver(t *testing.T) {
	t.Run("reads the deployment file", func(t *testing.T) {
		d := openDeployment(t, deploymentYAML)

		if got := d.GetString("broker.provider"); got != "kafka" {
			t.Errorf("expected kafka, got %s", got)
		}
		if got := d.GetStringSlice("broker.brokers"); len(got) != 2 || got[0] != "kafka-1:9092" {
			t.Errorf("unexpected brokers: %v", got)
		}
		if got := d.GetInt("outbox.batch_size"); got != 50 {
			t.Errorf("expected 50, got %d", got)
		}
		if got := d.GetDuration("outbox.poll_interval"); got != 250*time.Millisecond {
			t.Errorf("expected 250ms, got %s", got)
		}
		if !d.GetBool("database.auto_migrate") {
			t.Error("expected auto_migrate true")
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		d, err := NewDriver(&Config{
			ConfigName:  "relay",
			ConfigType:  "yaml",
			ConfigPaths: []string{t.TempDir()},
			EnvPrefix:   "RELAY",
		})
		if err != nil {
			t.Fatalf("missing file should not fail: %v", err)
		}
		if d.IsSet("broker.provider") {
			t.Error("expected an empty config")
		}
	})

	t.Run("nil config uses the relay defaults", func(t *testing.T) {
		if _, err := NewDriver(nil); err != nil {
			t.Fatalf("default driver failed: %v", err)
		}
	})

	t.Run("malformed file fails", func(t *testing.T) {
		file := writeDeployment(t, "broker: [unclosed")
		if _, err := NewDriver(&Config{ConfigFile: file, ConfigType: "yaml"}); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("prefixed variables override the file", func(t *testing.T) {
		t.Setenv("RELAY_BROKER_PROVIDER", "memory")
		t.Setenv("RELAY_OUTBOX_BATCH_SIZE", "10")

		d := openDeployment(t, deploymentYAML)
		if got := d.GetString("broker.provider"); got != "memory" {
			t.Errorf("expected memory, got %s", got)
		}
		if got := d.GetInt("outbox.batch_size"); got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("a foreign prefix is ignored", func(t *testing.T) {
		t.Setenv("APP_BROKER_PROVIDER", "memory")

		d := openDeployment(t, deploymentYAML)
		if got := d.GetString("broker.provider"); got != "kafka" {
			t.Errorf("expected kafka, got %s", got)
		}
	})
}

func TestPrecedence(t *testing.T) {
	d := openDeployment(t, deploymentYAML)

	t.Run("defaults fill unset keys only", func(t *testing.T) {
		d.SetDefault("outbox.buckets", 4)
		d.SetDefault("outbox.batch_size", 1)
		if got := d.GetInt("outbox.buckets"); got != 4 {
			t.Errorf("expected 4, got %d", got)
		}
		if got := d.GetInt("outbox.batch_size"); got != 50 {
			t.Errorf("file should win over a default, got %d", got)
		}
	})

	t.Run("set wins over the file", func(t *testing.T) {
		d.Set("broker.client_id", "billing-test")
		if got := d.GetString("broker.client_id"); got != "billing-test" {
			t.Errorf("expected billing-test, got %s", got)
		}
	})
}

func TestUnmarshalKey(t *testing.T) {
	d := openDeployment(t, deploymentYAML)

	var outbox OutboxSettings
	if err := d.UnmarshalKey("outbox", &outbox); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if outbox.PollInterval != 250*time.Millisecond || outbox.BatchSize != 50 {
		t.Errorf("unexpected outbox settings: %+v", outbox)
	}
}

func TestSub(t *testing.T) {
	d := openDeployment(t, deploymentYAML)

	logger := d.Sub("logger")
	if logger == nil {
		t.Fatal("expected a logger subtree")
	}
	if got := logger.GetString("level"); got != "debug" {
		t.Errorf("expected debug, got %s", got)
	}
	if d.Sub("nonexistent") != nil {
		t.Error("expected nil for a missing subtree")
	}
}

func TestReload(t *testing.T) {
	file := writeDeployment(t, deploymentYAML)
	d, err := NewDriver(&Config{ConfigFile: file, ConfigType: "yaml"})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	updated := `
broker:
  provider: memory
`
	if err := os.WriteFile(file, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := d.GetString("broker.provider"); got != "memory" {
		t.Errorf("expected memory after reload, got %s", got)
	}
}
