package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RFCONTROL_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Network.GRPC.Addr != "0.0.0.0:50051" {
		t.Errorf("Expected default gRPC addr 0.0.0.0:50051, got %s", cfg.Network.GRPC.Addr)
	}
	if cfg.Network.GRPC.MaxConcurrentStreams != 10 {
		t.Errorf("Expected 10 concurrent streams, got %d", cfg.Network.GRPC.MaxConcurrentStreams)
	}
	if cfg.Device.DefaultID != "DEV001" {
		t.Errorf("Expected default device DEV001, got %s", cfg.Device.DefaultID)
	}
	if cfg.Network.Maintenance.Addr != "" {
		t.Errorf("Expected maintenance to be disabled, got %s", cfg.Network.Maintenance.Addr)
	}
	if cfg.MQTT.Enabled {
		t.Error("Expected MQTT to be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rfcontrol.yaml", `
network:
  grpc:
    addr: "127.0.0.1:6000"
  http:
    addr: ""
  maintenance:
    addr: "127.0.0.1:6001"
device:
  defaultId: "SDR-7"
logging:
  level: debug
mqtt:
  enabled: true
  broker: "tcp://broker:1883"
  qos: 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Network.GRPC.Addr != "127.0.0.1:6000" {
		t.Errorf("Expected gRPC addr from file, got %s", cfg.Network.GRPC.Addr)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Network.GRPC.MaxConcurrentStreams != 10 {
		t.Errorf("Expected default concurrent streams to survive, got %d", cfg.Network.GRPC.MaxConcurrentStreams)
	}
	if cfg.Network.HTTP.Addr != "" {
		t.Errorf("Expected HTTP to be disabled, got %q", cfg.Network.HTTP.Addr)
	}
	if cfg.Network.Maintenance.Addr != "127.0.0.1:6001" {
		t.Errorf("Expected maintenance addr from file, got %s", cfg.Network.Maintenance.Addr)
	}
	if cfg.Device.DefaultID != "SDR-7" {
		t.Errorf("Expected device id SDR-7, got %s", cfg.Device.DefaultID)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.QoS != 1 || cfg.MQTT.TopicPrefix != "rfcontrol" {
		t.Errorf("Unexpected MQTT config: %+v", cfg.MQTT)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "env.yaml", "device:\n  defaultId: FROM-ENV-FILE\n")
	t.Setenv("RFCONTROL_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device.DefaultID != "FROM-ENV-FILE" {
		t.Errorf("Expected device id from RFCONTROL_CONFIG file, got %s", cfg.Device.DefaultID)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "network: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RFCONTROL_CONFIG", "")
	t.Setenv("RFCONTROL_GRPC_ADDR", "127.0.0.1:7000")
	t.Setenv("RFCONTROL_HTTP_ADDR", "")
	t.Setenv("RFCONTROL_DEVICE_ID", "ENV-DEV")
	t.Setenv("RFCONTROL_LOG_LEVEL", "warn")
	t.Setenv("RFCONTROL_MQTT_ENABLED", "true")
	t.Setenv("RFCONTROL_MQTT_BROKER", "tcp://env-broker:1883")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Network.GRPC.Addr != "127.0.0.1:7000" {
		t.Errorf("Expected gRPC addr override, got %s", cfg.Network.GRPC.Addr)
	}
	if cfg.Network.HTTP.Addr != "" {
		t.Errorf("Expected empty HTTP addr override to disable HTTP, got %q", cfg.Network.HTTP.Addr)
	}
	if cfg.Device.DefaultID != "ENV-DEV" {
		t.Errorf("Expected device id override, got %s", cfg.Device.DefaultID)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level override, got %s", cfg.Logging.Level)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://env-broker:1883" {
		t.Errorf("Expected MQTT overrides, got %+v", cfg.MQTT)
	}
}

func TestEnvOverrideInvalidBool(t *testing.T) {
	t.Setenv("RFCONTROL_CONFIG", "")
	t.Setenv("RFCONTROL_MQTT_ENABLED", "maybe")

	if _, err := Load(""); err == nil {
		t.Error("Expected error for invalid RFCONTROL_MQTT_ENABLED")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"missing grpc addr", func(c *Config) { c.Network.GRPC.Addr = "" }, "network.grpc.addr"},
		{"bad grpc addr", func(c *Config) { c.Network.GRPC.Addr = "no-port" }, "network.grpc.addr"},
		{"zero streams", func(c *Config) { c.Network.GRPC.MaxConcurrentStreams = 0 }, "maxConcurrentStreams"},
		{"bad http addr", func(c *Config) { c.Network.HTTP.Addr = "8080" }, "network.http.addr"},
		{"negative timeout", func(c *Config) { c.Network.HTTP.ReadTimeoutSec = -1 }, "timeouts"},
		{"bad cidr", func(c *Config) { c.Network.Maintenance.AllowedCIDRs = []string{"10.0.0.0/99"} }, "invalid CIDR"},
		{"maintenance without cidrs", func(c *Config) {
			c.Network.Maintenance.Addr = ":6001"
			c.Network.Maintenance.AllowedCIDRs = nil
		}, "allowedCidrs"},
		{"empty device id", func(c *Config) { c.Device.DefaultID = "  " }, "device.defaultId"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"upper level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
		{"heartbeat", func(c *Config) { c.Telemetry.HeartbeatIntervalSec = 0 }, "heartbeatIntervalSec"},
		{"subscriber buffer", func(c *Config) { c.Telemetry.SubscriberBuffer = 0 }, "subscriberBuffer"},
		{"mqtt qos", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.QoS = 3
		}, "mqtt.qos"},
		{"mqtt broker", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}, "mqtt.broker"},
		{"mqtt disabled ignores broker", func(c *Config) { c.MQTT.Broker = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rfcontrol.yaml", "logging:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	levels := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) {
			levels <- cfg.Logging.Level
		}, func(error) {})
	}()

	// Give the watcher time to register.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Dir(path), "rfcontrol.yaml", "logging:\n  level: debug\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case level := <-levels:
			if level == "debug" {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned error: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for config reload")
		}
	}
}

func TestWatchReportsInvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rfcontrol.yaml", "logging:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 16)
	go Watch(ctx, path, func(*Config) {}, func(err error) { errs <- err })

	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Dir(path), "rfcontrol.yaml", "logging:\n  level: loud\n")

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "logging.level") {
			t.Errorf("Expected validation error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload error")
	}
}
