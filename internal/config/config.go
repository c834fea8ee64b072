//
//
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DefaultPath is read when no explicit config file is given and it exists.
const DefaultPath = "config/rfcontrol.yaml"

// Config represents the complete configuration for the RF control server.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Device    DeviceConfig    `yaml:"device"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// NetworkConfig holds the listeners of the server.
type NetworkConfig struct {
	GRPC        GRPCConfig        `yaml:"grpc"`
	HTTP        HTTPConfig        `yaml:"http"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// GRPCConfig holds gRPC server settings
type GRPCConfig struct {
	Addr                 string `yaml:"addr"`
	MaxConcurrentStreams int    `yaml:"maxConcurrentStreams"`
}

// HTTPConfig holds JSON-RPC HTTP server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"readTimeoutSec"`
	WriteTimeoutSec int    `yaml:"writeTimeoutSec"`
	IdleTimeoutSec  int    `yaml:"idleTimeoutSec"`
}

// MaintenanceConfig holds maintenance TCP server settings. An empty Addr disables it.
type MaintenanceConfig struct {
	Addr         string   `yaml:"addr"`
	AllowedCIDRs []string `yaml:"allowedCidrs"`
	TimeoutSec   int      `yaml:"timeoutSec"`
}

// DeviceConfig holds the simulated device settings
type DeviceConfig struct {
	DefaultID string `yaml:"defaultId"`
}

// LoggingConfig holds logger settings. An empty File logs to stderr only.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// AuditConfig holds audit log settings. An empty Dir disables auditing.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig holds event hub settings
type TelemetryConfig struct {
	HeartbeatIntervalSec int `yaml:"heartbeatIntervalSec"`
	ReplayBuffer         int `yaml:"replayBuffer"`
	SubscriberBuffer     int `yaml:"subscriberBuffer"`
}

// MQTTConfig holds the MQTT status sink settings
type MQTTConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Broker            string `yaml:"broker"`
	ClientID          string `yaml:"clientId"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	TopicPrefix       string `yaml:"topicPrefix"`
	QoS               int    `yaml:"qos"`
	ConnectTimeoutSec int    `yaml:"connectTimeoutSec"`
}

// Load loads configuration from defaults, a YAML file and environment variables.
// path may be empty; then RFCONTROL_CONFIG or DefaultPath (if present) is used.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = os.Getenv("RFCONTROL_CONFIG")
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	if err := loadFromFile(cfg, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			GRPC: GRPCConfig{
				Addr:                 "0.0.0.0:50051",
				MaxConcurrentStreams: 10,
			},
			HTTP: HTTPConfig{
				Addr:            ":8080",
				ReadTimeoutSec:  10,
				WriteTimeoutSec: 0, // SSE streams are long-lived
				IdleTimeoutSec:  120,
			},
			Maintenance: MaintenanceConfig{
				Addr:         "",
				AllowedCIDRs: []string{"127.0.0.0/8", "::1/128"},
				TimeoutSec:   30,
			},
		},
		Device: DeviceConfig{
			DefaultID: "DEV001",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 90,
		},
		Telemetry: TelemetryConfig{
			HeartbeatIntervalSec: 15,
			ReplayBuffer:         50,
			SubscriberBuffer:     100,
		},
		MQTT: MQTTConfig{
			Enabled:           false,
			Broker:            "tcp://localhost:1883",
			ClientID:          "rfcontrol",
			TopicPrefix:       "rfcontrol",
			QoS:               0,
			ConnectTimeoutSec: 5,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies RFCONTROL_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("RFCONTROL_GRPC_ADDR"); ok {
		cfg.Network.GRPC.Addr = v
	}
	if v, ok := os.LookupEnv("RFCONTROL_HTTP_ADDR"); ok {
		cfg.Network.HTTP.Addr = v
	}
	if v, ok := os.LookupEnv("RFCONTROL_MAINTENANCE_ADDR"); ok {
		cfg.Network.Maintenance.Addr = v
	}
	if v := os.Getenv("RFCONTROL_DEVICE_ID"); v != "" {
		cfg.Device.DefaultID = v
	}
	if v := os.Getenv("RFCONTROL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RFCONTROL_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("RFCONTROL_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RFCONTROL_MQTT_ENABLED: %w", err)
		}
		cfg.MQTT.Enabled = enabled
	}
	return nil
}
