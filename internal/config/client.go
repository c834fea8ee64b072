package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds rfctl settings.
type ClientConfig struct {
	Server    string
	HTTPURL   string
	Transport string
	DeviceID  string
	Timeout   time.Duration
	LogLevel  string
}

// Transports accepted by rfctl.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// LoadClient reads rfctl settings. With an empty path an optional rfctl.{yaml,json,toml}
// is searched in the working directory, $HOME/.config/rfcontrol and /etc/rfcontrol.
// RFCTL_* environment variables override file values.
func LoadClient(path string) (*ClientConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("RFCTL")
	v.AutomaticEnv()

	v.SetDefault("server", "localhost:50051")
	v.SetDefault("http_url", "http://localhost:8080")
	v.SetDefault("transport", TransportGRPC)
	v.SetDefault("device_id", "DEV001")
	v.SetDefault("timeout", "5s")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read client config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rfctl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rfcontrol")
		v.AddConfigPath("/etc/rfcontrol")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read client config: %w", err)
			}
		}
	}

	cfg := &ClientConfig{
		Server:    v.GetString("server"),
		HTTPURL:   v.GetString("http_url"),
		Transport: strings.ToLower(v.GetString("transport")),
		DeviceID:  v.GetString("device_id"),
		Timeout:   v.GetDuration("timeout"),
		LogLevel:  v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks client settings.
func (c *ClientConfig) Validate() error {
	switch c.Transport {
	case TransportGRPC:
		if c.Server == "" {
			return fmt.Errorf("server address is required for the grpc transport")
		}
	case TransportHTTP:
		if c.HTTPURL == "" {
			return fmt.Errorf("http_url is required for the http transport")
		}
	default:
		return fmt.Errorf("invalid transport %q, must be %s or %s", c.Transport, TransportGRPC, TransportHTTP)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
