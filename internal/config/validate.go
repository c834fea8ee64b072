//
//
package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidLogLevels are the accepted logging.level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks the configuration for values the server cannot run with.
func Validate(cfg *Config) error {
	if cfg.Network.GRPC.Addr == "" {
		return fmt.Errorf("network.grpc.addr is required")
	}
	if err := validateAddr("network.grpc.addr", cfg.Network.GRPC.Addr); err != nil {
		return err
	}
	if cfg.Network.GRPC.MaxConcurrentStreams < 1 {
		return fmt.Errorf("network.grpc.maxConcurrentStreams %d must be at least 1", cfg.Network.GRPC.MaxConcurrentStreams)
	}

	if cfg.Network.HTTP.Addr != "" {
		if err := validateAddr("network.http.addr", cfg.Network.HTTP.Addr); err != nil {
			return err
		}
	}
	if cfg.Network.HTTP.ReadTimeoutSec < 0 || cfg.Network.HTTP.WriteTimeoutSec < 0 || cfg.Network.HTTP.IdleTimeoutSec < 0 {
		return fmt.Errorf("network.http timeouts must not be negative")
	}

	if cfg.Network.Maintenance.Addr != "" {
		if err := validateAddr("network.maintenance.addr", cfg.Network.Maintenance.Addr); err != nil {
			return err
		}
		if len(cfg.Network.Maintenance.AllowedCIDRs) == 0 {
			return fmt.Errorf("network.maintenance.allowedCidrs must not be empty when maintenance is enabled")
		}
	}
	for _, cidr := range cfg.Network.Maintenance.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid CIDR %q in network.maintenance.allowedCidrs: %w", cidr, err)
		}
	}

	if strings.TrimSpace(cfg.Device.DefaultID) == "" {
		return fmt.Errorf("device.defaultId is required")
	}

	if !contains(ValidLogLevels, strings.ToLower(cfg.Logging.Level)) {
		return fmt.Errorf("invalid logging.level %q, must be one of: %v", cfg.Logging.Level, ValidLogLevels)
	}

	if cfg.Telemetry.HeartbeatIntervalSec < 1 || cfg.Telemetry.HeartbeatIntervalSec > 300 {
		return fmt.Errorf("telemetry.heartbeatIntervalSec %d is outside reasonable range [1, 300]", cfg.Telemetry.HeartbeatIntervalSec)
	}
	if cfg.Telemetry.ReplayBuffer < 0 {
		return fmt.Errorf("telemetry.replayBuffer must not be negative")
	}
	if cfg.Telemetry.SubscriberBuffer < 1 {
		return fmt.Errorf("telemetry.subscriberBuffer must be at least 1")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topicPrefix is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", cfg.MQTT.QoS)
		}
		if cfg.MQTT.ConnectTimeoutSec < 1 {
			return fmt.Errorf("mqtt.connectTimeoutSec must be at least 1")
		}
	}

	return nil
}

func validateAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, addr, err)
	}
	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
