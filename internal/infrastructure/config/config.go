package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for plugd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Controller ControllerConfig `yaml:"controller"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig contains the static identity of the managed plug.
// These values are reported whenever no live reading is available.
type DeviceConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
	MAC   string `yaml:"mac"`
}

// ControllerConfig describes the external control program.
type ControllerConfig struct {
	// Binary is the path to the executable (or interpreter).
	Binary string `yaml:"binary"`

	// Args are placed before the action argument.
	// For an interpreter this is typically the script path,
	// e.g. ["tapo_control.py"] yields "python tapo_control.py on".
	Args []string `yaml:"args"`

	// WorkDir is the working directory for the controller.
	// If empty, inherits from plugd.
	WorkDir string `yaml:"work_dir"`

	// Env are additional environment variables (key=value format).
	Env []string `yaml:"env"`

	// Timeout bounds a single invocation.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`

	// PowerField is the key of the boolean power flag in the status record.
	// Default: "device_on"
	PowerField string `yaml:"power_field"`

	// MaxConcurrent limits overlapping invocations. 0 means unlimited.
	// Default: 1
	MaxConcurrent int `yaml:"max_concurrent"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// StaticDir serves the web UI from disk instead of the embedded copy.
	StaticDir string `yaml:"static_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
// Write must exceed Config.MinWriteTimeout or slow requests are cut off;
// 0 disables the limit.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// DatabaseConfig contains SQLite settings for the observation history.
// The history is an audit trail only; the state cache is never rebuilt from it.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLUGD_SECTION_KEY
// For example: PLUGD_CONTROLLER_BINARY, PLUGD_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:    "plug-001",
			Name:  "Smart Plug",
			Model: "P100",
		},
		Controller: ControllerConfig{
			Binary:        "/usr/local/bin/tapo-control",
			Timeout:       15 * time.Second,
			PowerField:    "device_on",
			MaxConcurrent: 1,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "plugd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "plugd",
		},
		Database: DatabaseConfig{
			Path:          "./data/plugd.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLUGD_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("PLUGD_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("PLUGD_DEVICE_MAC"); v != "" {
		cfg.Device.MAC = v
	}

	// Controller
	if v := os.Getenv("PLUGD_CONTROLLER_BINARY"); v != "" {
		cfg.Controller.Binary = v
	}
	if v := os.Getenv("PLUGD_CONTROLLER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PLUGD_CONTROLLER_TIMEOUT: %w", err)
		}
		cfg.Controller.Timeout = d
	}

	// API
	if v := os.Getenv("PLUGD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PLUGD_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PLUGD_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// MQTT
	if v := os.Getenv("PLUGD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLUGD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLUGD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PLUGD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("PLUGD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	return nil
}

// Validate checks the configuration for errors.
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// Controller validation
	if c.Controller.Binary == "" {
		errs = append(errs, "controller.binary is required")
	}
	if c.Controller.Timeout <= 0 {
		errs = append(errs, "controller.timeout must be positive")
	}
	if c.Controller.PowerField == "" {
		errs = append(errs, "controller.power_field is required")
	}
	if c.Controller.MaxConcurrent < 0 {
		errs = append(errs, "controller.max_concurrent must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}
	if w := c.GetWriteTimeout(); w > 0 && c.Controller.Timeout > 0 && w <= c.MinWriteTimeout() {
		errs = append(errs, fmt.Sprintf("api.timeouts.write (%s) must exceed %s for a %s controller timeout",
			w, c.MinWriteTimeout(), c.Controller.Timeout))
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MinWriteTimeout is the longest a request can hold the controller: a
// toggle runs two invocations, and with bounded concurrency it may first
// wait for one already running.
func (c *Config) MinWriteTimeout() time.Duration {
	n := 2
	if c.Controller.MaxConcurrent > 0 {
		n++
	}
	return time.Duration(n) * c.Controller.Timeout
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
