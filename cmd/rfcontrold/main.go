// Package main implements the RF control server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radio-control/rfcontrol/internal/audit"
	"github.com/radio-control/rfcontrol/internal/config"
	"github.com/radio-control/rfcontrol/internal/control"
	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/jsonrpc"
	"github.com/radio-control/rfcontrol/internal/logging"
	"github.com/radio-control/rfcontrol/internal/maintenance"
	"github.com/radio-control/rfcontrol/internal/rpc"
	"github.com/radio-control/rfcontrol/internal/telemetry"
)

// Version of the server
const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config file (default $RFCONTROL_CONFIG or "+config.DefaultPath+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rfcontrold: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Step 1: Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Step 2: Initialize logging
	log, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()
	log.Info().Str("version", Version).Msg("Starting RF control server")

	// Step 3: Initialize audit logger
	var auditLogger *audit.Logger
	if cfg.Audit.Dir != "" {
		auditLogger, err = audit.NewLogger(audit.Options{
			Dir:        cfg.Audit.Dir,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		defer auditLogger.Close()
		log.Info().Str("file", auditLogger.FilePath()).Msg("Audit logger initialized")
	}

	// Step 4: Initialize the device and connect the default id
	dev := device.New(device.WithLogger(log))
	dev.Connect(cfg.Device.DefaultID)
	defer dev.Disconnect()

	// Step 5: Initialize telemetry hub
	hub := telemetry.NewHub(telemetry.Options{
		HeartbeatInterval: time.Duration(cfg.Telemetry.HeartbeatIntervalSec) * time.Second,
		ReplayBuffer:      cfg.Telemetry.ReplayBuffer,
		SubscriberBuffer:  cfg.Telemetry.SubscriberBuffer,
		Snapshot:          func() interface{} { return dev.Snapshot() },
	}, log)
	defer hub.Stop()

	// Step 6: Optional MQTT status sink
	if cfg.MQTT.Enabled {
		client, err := telemetry.ConnectMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer func() {
			// Drain queued events before going offline.
			hub.Stop()
			telemetry.DisconnectMQTT(client, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
		}()
		hub.AddSink(telemetry.NewMQTTSink(client, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS),
			time.Duration(cfg.MQTT.ConnectTimeoutSec)*time.Second, log))
		publishState(hub, dev)
	}

	// Step 7: Create the control service
	service := control.NewService(dev, log)
	service.SetPublisher(hub)
	if auditLogger != nil {
		service.SetAuditLogger(auditLogger)
	}

	// Step 8: Start servers
	serverErr := make(chan error, 3)

	grpcServer := rpc.NewServer(service, cfg.Network.GRPC.MaxConcurrentStreams, log)
	go func() {
		if err := grpcServer.Start(cfg.Network.GRPC.Addr); err != nil {
			serverErr <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	var httpServer *jsonrpc.Server
	if cfg.Network.HTTP.Addr != "" {
		httpServer = jsonrpc.NewServer(service, hub, Version, log,
			time.Duration(cfg.Network.HTTP.ReadTimeoutSec)*time.Second,
			time.Duration(cfg.Network.HTTP.WriteTimeoutSec)*time.Second,
			time.Duration(cfg.Network.HTTP.IdleTimeoutSec)*time.Second)
		go func() {
			if err := httpServer.Start(cfg.Network.HTTP.Addr); err != nil {
				serverErr <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	}

	var maintenanceServer *maintenance.Server
	if cfg.Network.Maintenance.Addr != "" {
		maintenanceServer, err = maintenance.NewServer(dev, cfg.Network.Maintenance, cfg.Device.DefaultID, log)
		if err != nil {
			return fmt.Errorf("failed to create maintenance server: %w", err)
		}
		maintenanceServer.SetPublisher(hub)
		if auditLogger != nil {
			maintenanceServer.SetAuditLogger(auditLogger)
		}
		go func() {
			if err := maintenanceServer.Start(cfg.Network.Maintenance.Addr); err != nil {
				serverErr <- fmt.Errorf("maintenance server failed: %w", err)
			}
		}()
	}

	// Step 9: Watch the config file for log level changes
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if path := watchedPath(configPath); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(newCfg *config.Config) {
				level := logging.SetLevel(newCfg.Logging.Level)
				log.Info().Str("level", level.String()).Msg("Configuration reloaded")
			}, func(err error) {
				log.Warn().Err(err).Msg("Ignoring invalid configuration change")
			})
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Config watch disabled")
			}
		}()
	}

	log.Info().
		Str("grpc", cfg.Network.GRPC.Addr).
		Str("http", cfg.Network.HTTP.Addr).
		Str("maintenance", cfg.Network.Maintenance.Addr).
		Str("device", cfg.Device.DefaultID).
		Msg("RF control server started")

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("Server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := grpcServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error stopping gRPC server")
	}
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Error stopping HTTP server")
		}
	}
	if maintenanceServer != nil {
		if err := maintenanceServer.Close(); err != nil {
			log.Warn().Err(err).Msg("Error stopping maintenance server")
		}
	}

	log.Info().Msg("RF control server shutdown complete")
	return runErr
}

// watchedPath returns the config file to watch, if any.
func watchedPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("RFCONTROL_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return ""
}

// publishState announces the startup device state to the sinks.
func publishState(hub *telemetry.Hub, dev *device.Device) {
	snap := dev.Snapshot()
	hub.PublishDevice(snap.DeviceID, telemetry.EventState, map[string]interface{}{
		"connected":  snap.Connected,
		"statusText": snap.StatusText,
	})
}
