package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  id: "80224DF05AAE2D913231A9A7364E7B1F1FDB7D96"
  model: "P100"
  mac: "28-87-BA-A8-9B-D4"
controller:
  binary: "/usr/bin/python3"
  args: ["/opt/tapo/tapo_control.py"]
  timeout: 20s
api:
  host: "0.0.0.0"
  port: 3001
database:
  enabled: true
  path: "/tmp/plugd.db"
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

	if cfg.Device.ID != "80224DF05AAE2D913231A9A7364E7B1F1FDB7D96" {
		t.Errorf("Device.ID = %q", cfg.Device.ID)
	}
	if cfg.Device.MAC != "28-87-BA-A8-9B-D4" {
		t.Errorf("Device.MAC = %q, want %q", cfg.Device.MAC, "28-87-BA-A8-9B-D4")
	}
	if cfg.Controller.Binary != "/usr/bin/python3" {
		t.Errorf("Controller.Binary = %q, want %q", cfg.Controller.Binary, "/usr/bin/python3")
	}
	if len(cfg.Controller.Args) != 1 || cfg.Controller.Args[0] != "/opt/tapo/tapo_control.py" {
		t.Errorf("Controller.Args = %v", cfg.Controller.Args)
	}
	if cfg.Controller.Timeout != 20*time.Second {
		t.Errorf("Controller.Timeout = %v, want 20s", cfg.Controller.Timeout)
	}
	// Unset values keep their defaults.
	if cfg.Controller.PowerField != "device_on" {
		t.Errorf("Controller.PowerField = %q, want %q", cfg.Controller.PowerField, "device_on")
	}
	if cfg.Controller.MaxConcurrent != 1 {
		t.Errorf("Controller.MaxConcurrent = %d, want 1", cfg.Controller.MaxConcurrent)
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
device:
  id: ""
controller:
  binary: "/bin/true"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty device.id, got nil")
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("device:\n  id: plug\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("PLUGD_API_PORT", "not-a-port")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for non-numeric PLUGD_API_PORT, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Device: DeviceConfig{ID: "plug-001"},
			Controller: ControllerConfig{
				Binary:        "/bin/true",
				Timeout:       time.Second,
				PowerField:    "device_on",
				MaxConcurrent: 1,
			},
			API:  APIConfig{Port: 3001},
			MQTT: MQTTConfig{QoS: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "missing device ID",
			mutate:  func(c *Config) { c.Device.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing controller binary",
			mutate:  func(c *Config) { c.Controller.Binary = "" },
			wantErr: true,
		},
		{
			name:    "zero controller timeout",
			mutate:  func(c *Config) { c.Controller.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "missing power field",
			mutate:  func(c *Config) { c.Controller.PowerField = "" },
			wantErr: true,
		},
		{
			name:    "negative max concurrent",
			mutate:  func(c *Config) { c.Controller.MaxConcurrent = -1 },
			wantErr: true,
		},
		{
			name:    "unlimited concurrency is allowed",
			mutate:  func(c *Config) { c.Controller.MaxConcurrent = 0 },
			wantErr: false,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without topic prefix",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "database enabled without path",
			mutate:  func(c *Config) { c.Database.Enabled = true },
			wantErr: true,
		},
		{
			name:    "write timeout equal to queued toggle",
			mutate:  func(c *Config) { c.API.Timeouts.Write = 3 },
			wantErr: true,
		},
		{
			name:    "write timeout above queued toggle",
			mutate:  func(c *Config) { c.API.Timeouts.Write = 4 },
			wantErr: false,
		},
		{
			name: "write timeout shorter than one invocation",
			mutate: func(c *Config) {
				c.Controller.Timeout = 15 * time.Second
				c.API.Timeouts.Write = 10
			},
			wantErr: true,
		},
		{
			name: "unbounded concurrency needs two invocations",
			mutate: func(c *Config) {
				c.Controller.MaxConcurrent = 0
				c.API.Timeouts.Write = 3
			},
			wantErr: false,
		},
		{
			name:    "disabled write timeout",
			mutate:  func(c *Config) { c.API.Timeouts.Write = 0 },
			wantErr: false,
		},
		{
			name: "tls without certificate",
			mutate: func(c *Config) {
				c.API.TLS.Enabled = true
				c.API.TLS.KeyFile = "key.pem"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MinWriteTimeout(t *testing.T) {
	tests := []struct {
		maxConcurrent int
		want          time.Duration
	}{
		{1, 45 * time.Second},
		{4, 45 * time.Second},
		{0, 30 * time.Second},
	}
	for _, tt := range tests {
		cfg := &Config{Controller: ControllerConfig{Timeout: 15 * time.Second, MaxConcurrent: tt.maxConcurrent}}
		if got := cfg.MinWriteTimeout(); got != tt.want {
			t.Errorf("MinWriteTimeout(max_concurrent=%d) = %v, want %v", tt.maxConcurrent, got, tt.want)
		}
	}
}

func TestLoad_DefaultsPassValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("device:\n  id: plug-001\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() with defaults error = %v", err)
	}
	if cfg.GetWriteTimeout() <= cfg.MinWriteTimeout() {
		t.Errorf("default write timeout %v does not exceed %v", cfg.GetWriteTimeout(), cfg.MinWriteTimeout())
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PLUGD_DEVICE_ID", "env-plug")
	t.Setenv("PLUGD_DEVICE_MAC", "AA-BB-CC-DD-EE-FF")
	t.Setenv("PLUGD_CONTROLLER_BINARY", "/opt/bin/ctl")
	t.Setenv("PLUGD_CONTROLLER_TIMEOUT", "3s")
	t.Setenv("PLUGD_API_HOST", "192.168.1.1")
	t.Setenv("PLUGD_API_PORT", "8081")
	t.Setenv("PLUGD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PLUGD_MQTT_USERNAME", "testuser")
	t.Setenv("PLUGD_MQTT_PASSWORD", "testpass")
	t.Setenv("PLUGD_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("PLUGD_DATABASE_PATH", "/custom/path.db")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Device.ID != "env-plug" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "env-plug")
	}
	if cfg.Device.MAC != "AA-BB-CC-DD-EE-FF" {
		t.Errorf("Device.MAC = %q, want %q", cfg.Device.MAC, "AA-BB-CC-DD-EE-FF")
	}
	if cfg.Controller.Binary != "/opt/bin/ctl" {
		t.Errorf("Controller.Binary = %q, want %q", cfg.Controller.Binary, "/opt/bin/ctl")
	}
	if cfg.Controller.Timeout != 3*time.Second {
		t.Errorf("Controller.Timeout = %v, want 3s", cfg.Controller.Timeout)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8081 {
		t.Errorf("API.Port = %d, want 8081", cfg.API.Port)
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
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
	if cfg.API.Port != 3001 {
		t.Errorf("defaultConfig API.Port = %d, want 3001", cfg.API.Port)
	}
	if cfg.Controller.Timeout != 15*time.Second {
		t.Errorf("defaultConfig Controller.Timeout = %v, want 15s", cfg.Controller.Timeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
