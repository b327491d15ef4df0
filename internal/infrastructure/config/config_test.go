package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Matrix.Connection = "tcp://192.168.1.50:23"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
matrix:
  id: "lounge"
  connection: "telnet://192.168.1.50"
  idle_timeout: 250ms
  poll_interval: 1m
  bulk_parse_policy: lenient
  inputs: ["Apple TV", "Sky Q", "PS5"]
  outputs: ["Lounge TV", "Kitchen"]
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Matrix.ID != "lounge" {
		t.Errorf("Matrix.ID = %q, want %q", cfg.Matrix.ID, "lounge")
	}
	if cfg.Matrix.IdleTimeout != 250*time.Millisecond {
		t.Errorf("Matrix.IdleTimeout = %v, want 250ms", cfg.Matrix.IdleTimeout)
	}
	if cfg.Matrix.PollInterval != time.Minute {
		t.Errorf("Matrix.PollInterval = %v, want 1m", cfg.Matrix.PollInterval)
	}
	// Unset values keep their defaults.
	if cfg.Matrix.ConnectTimeout != 5*time.Second {
		t.Errorf("Matrix.ConnectTimeout = %v, want 5s", cfg.Matrix.ConnectTimeout)
	}
	if len(cfg.Matrix.Inputs) != 3 || cfg.Matrix.Inputs[1] != "Sky Q" {
		t.Errorf("Matrix.Inputs = %q", cfg.Matrix.Inputs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// All problems are reported together.
	for _, want := range []string{"site.id", "matrix.connection"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid broker port", mutate: func(c *Config) { c.MQTT.Broker.Port = 70000 }, wantErr: "mqtt.broker.port"},
		{name: "influx without url", mutate: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = "matrix"
		}, wantErr: "influxdb.url"},
		{name: "influx without bucket", mutate: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://localhost:8086"
		}, wantErr: "influxdb.bucket"},
		{name: "missing matrix id", mutate: func(c *Config) { c.Matrix.ID = "" }, wantErr: "matrix.id"},
		{name: "matrix id with wildcard", mutate: func(c *Config) { c.Matrix.ID = "lounge/+" }, wantErr: "matrix.id"},
		{name: "missing connection", mutate: func(c *Config) { c.Matrix.Connection = "" }, wantErr: "matrix.connection"},
		{name: "zero idle timeout", mutate: func(c *Config) { c.Matrix.IdleTimeout = 0 }, wantErr: "matrix.idle_timeout"},
		{name: "huge idle timeout", mutate: func(c *Config) { c.Matrix.IdleTimeout = time.Minute }, wantErr: "matrix.idle_timeout"},
		{name: "fast polling", mutate: func(c *Config) { c.Matrix.PollInterval = 100 * time.Millisecond }, wantErr: "matrix.poll_interval"},
		{name: "command timeout too short", mutate: func(c *Config) { c.Matrix.CommandTimeout = 100 * time.Millisecond }, wantErr: "matrix.command_timeout"},
		{name: "bad parse policy", mutate: func(c *Config) { c.Matrix.BulkParsePolicy = "relaxed" }, wantErr: "bulk_parse_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_MATRIX_CONNECTION", "serial:///dev/ttyUSB0")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Matrix.Connection != "serial:///dev/ttyUSB0" {
		t.Errorf("Matrix.Connection = %q", cfg.Matrix.Connection)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Matrix.IdleTimeout != 300*time.Millisecond {
		t.Errorf("defaultConfig Matrix.IdleTimeout = %v, want 300ms", cfg.Matrix.IdleTimeout)
	}
	if cfg.Matrix.PollInterval != 30*time.Second {
		t.Errorf("defaultConfig Matrix.PollInterval = %v, want 30s", cfg.Matrix.PollInterval)
	}
}

func TestPortNames(t *testing.T) {
	m := MatrixConfig{
		Inputs:  []string{"Apple TV", "", "PS5"},
		Outputs: []string{"Lounge"},
	}

	if got := m.InputName(1); got != "Apple TV" {
		t.Errorf("InputName(1) = %q", got)
	}
	if got := m.InputName(2); got != "Input 2" {
		t.Errorf("InputName(2) = %q, want fallback", got)
	}
	if got := m.OutputName(4); got != "Output 4" {
		t.Errorf("OutputName(4) = %q, want fallback", got)
	}
	if n, ok := m.InputByName("ps5"); !ok || n != 3 {
		t.Errorf("InputByName(ps5) = %d, %v", n, ok)
	}
	if _, ok := m.InputByName("Xbox"); ok {
		t.Error("InputByName(Xbox) found")
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Auth.Password = "hunter2"
	cfg.InfluxDB.Token = "tok-123"

	s := cfg.String()
	if strings.Contains(s, "hunter2") || strings.Contains(s, "tok-123") {
		t.Errorf("String() leaks secrets:\n%s", s)
	}
	if cfg.MQTT.Auth.Password != "hunter2" {
		t.Error("String() modified the original config")
	}
}
