package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the matrix bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Audit    AuditConfig    `yaml:"audit"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MatrixConfig describes the HDMI matrix and how the bridge drives it.
type MatrixConfig struct {
	// ID names the matrix in MQTT topics and audit records.
	ID string `yaml:"id"`

	// Name is a display name. Defaults to the model reported by the device.
	Name string `yaml:"name"`

	// Connection is the device URL.
	// Supported formats:
	//   - "tcp://192.168.1.50:23"
	//   - "telnet://192.168.1.50" (with option negotiation)
	//   - "serial:///dev/ttyUSB0?baud=9600"
	Connection string `yaml:"connection"`

	// ConnectTimeout bounds session establishment. Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleTimeout is the quiet period that ends a reply. Default: 300ms
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// WriteTimeout bounds writing one command. Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxResponseBytes caps a single reply. Default: 65536
	MaxResponseBytes int `yaml:"max_response_bytes"`

	// BulkParsePolicy is "strict" (a bad line fails the whole bulk query)
	// or "lenient" (the bad line is skipped). Default: strict
	BulkParsePolicy string `yaml:"bulk_parse_policy"`

	// PollInterval is how often the bridge refreshes device state. Default: 30s
	PollInterval time.Duration `yaml:"poll_interval"`

	// HealthInterval is how often health is published. Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// CommandTimeout bounds one bridge operation, including reconnection.
	// Default: 15s
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Inputs and Outputs are display names in port order (port 1 first).
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`

	// TraceFile enables the CBOR wire trace when set.
	TraceFile string `yaml:"trace_file"`
}

// AuditConfig controls the command audit log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays prunes entries older than this at startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MATRIX_CONNECTION
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/matrix.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-matrix",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Matrix: MatrixConfig{
			ID:               "matrix-1",
			ConnectTimeout:   5 * time.Second,
			IdleTimeout:      300 * time.Millisecond,
			WriteTimeout:     5 * time.Second,
			MaxResponseBytes: 64 * 1024,
			BulkParsePolicy:  "strict",
			PollInterval:     30 * time.Second,
			HealthInterval:   30 * time.Second,
			CommandTimeout:   15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Matrix
	if v := os.Getenv("GRAYLOGIC_MATRIX_CONNECTION"); v != "" {
		cfg.Matrix.Connection = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if _, err := url.ParseRequestURI(c.InfluxDB.URL); err != nil {
			errs = append(errs, "influxdb.url must be a valid URL when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	errs = append(errs, c.Matrix.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (m *MatrixConfig) validate() []string {
	var errs []string

	if m.ID == "" {
		errs = append(errs, "matrix.id is required")
	} else if strings.ContainsAny(m.ID, "/+#") {
		errs = append(errs, "matrix.id must not contain MQTT topic characters (/ + #)")
	}

	if m.Connection == "" {
		errs = append(errs, "matrix.connection is required (set GRAYLOGIC_MATRIX_CONNECTION environment variable)")
	}

	if m.ConnectTimeout <= 0 {
		errs = append(errs, "matrix.connect_timeout must be positive")
	}
	if m.IdleTimeout <= 0 {
		errs = append(errs, "matrix.idle_timeout must be positive")
	} else if m.IdleTimeout > 5*time.Second {
		errs = append(errs, "matrix.idle_timeout must not exceed 5s")
	}
	if m.PollInterval < time.Second {
		errs = append(errs, "matrix.poll_interval must be at least 1s")
	}
	if m.CommandTimeout <= m.IdleTimeout {
		errs = append(errs, "matrix.command_timeout must exceed matrix.idle_timeout")
	}

	switch strings.ToLower(m.BulkParsePolicy) {
	case "", "strict", "lenient":
	default:
		errs = append(errs, fmt.Sprintf("matrix.bulk_parse_policy %q must be strict or lenient", m.BulkParsePolicy))
	}

	return errs
}

// InputName returns the configured name of an input, or "Input N".
func (m *MatrixConfig) InputName(n int) string {
	return portName(m.Inputs, "Input", n)
}

// OutputName returns the configured name of an output, or "Output N".
func (m *MatrixConfig) OutputName(n int) string {
	return portName(m.Outputs, "Output", n)
}

// InputByName returns the 1-based input whose configured name matches
// (case-insensitive).
func (m *MatrixConfig) InputByName(name string) (int, bool) {
	for i, n := range m.Inputs {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(name)) {
			return i + 1, true
		}
	}
	return 0, false
}

func portName(names []string, kind string, n int) string {
	if n >= 1 && n <= len(names) && names[n-1] != "" {
		return names[n-1]
	}
	return fmt.Sprintf("%s %d", kind, n)
}

// String returns a printable summary with secrets redacted.
func (c *Config) String() string {
	redacted := *c
	if redacted.MQTT.Auth.Password != "" {
		redacted.MQTT.Auth.Password = "[REDACTED]"
	}
	if redacted.InfluxDB.Token != "" {
		redacted.InfluxDB.Token = "[REDACTED]"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
