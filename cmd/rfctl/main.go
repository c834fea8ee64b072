// Package main implements rfctl, the command line client of the RF control server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/config"
	"github.com/radio-control/rfcontrol/internal/control"
	"github.com/radio-control/rfcontrol/internal/jsonrpc"
	"github.com/radio-control/rfcontrol/internal/logging"
	"github.com/radio-control/rfcontrol/internal/rpc"
	"github.com/radio-control/rfcontrol/internal/tui"
)

const usage = `Usage: rfctl [global flags] <command> [flags]

Commands:
  set      apply frequency and gain (default)
  status   print the device status
  ui       open the interactive form

Global flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globals are the flags shared by every command. Empty values fall back to
// the client config.
type globals struct {
	configPath string
	server     string
	url        string
	transport  string
	timeout    time.Duration
	logLevel   string
}

func run(args []string, stdout, stderr io.Writer) int {
	var g globals
	fs := flag.NewFlagSet("rfctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "client config file")
	fs.StringVar(&g.server, "server", "", "gRPC server address (default localhost:50051)")
	fs.StringVar(&g.url, "url", "", "JSON-RPC base URL (default http://localhost:8080)")
	fs.StringVar(&g.transport, "transport", "", "grpc or http (default grpc)")
	fs.DurationVar(&g.timeout, "timeout", 0, "per-call timeout; 0 uses the config (default 5s)")
	fs.StringVar(&g.logLevel, "log-level", "", "log level (default info)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintf(stderr, "rfctl: %v\n", err)
		return 2
	}

	command, rest := "set", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	log := zerolog.Nop()
	if command != "ui" {
		log = logging.NewConsole(cfg.LogLevel)
	}

	ctl, closer, err := newController(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "rfctl: %v\n", err)
		return 1
	}
	defer closer()
	log.Debug().Str("transport", cfg.Transport).Str("target", target(cfg)).Msg("client ready")

	switch command {
	case "set":
		return runSet(ctl, cfg, rest, stdout, stderr)
	case "status":
		return runStatus(ctl, cfg, rest, stdout, stderr)
	case "ui":
		return runUI(ctl, cfg, rest, stderr)
	default:
		fmt.Fprintf(stderr, "rfctl: unknown command %q\n", command)
		fs.Usage()
		return 2
	}
}

func loadConfig(g globals) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.server != "" {
		cfg.Server = g.server
	}
	if g.url != "" {
		cfg.HTTPURL = g.url
	}
	if g.transport != "" {
		cfg.Transport = g.transport
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.timeout < 0 {
		return nil, fmt.Errorf("invalid -timeout %v: must not be negative", g.timeout)
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}
	return cfg, cfg.Validate()
}

func target(cfg *config.ClientConfig) string {
	if cfg.Transport == config.TransportHTTP {
		return cfg.HTTPURL
	}
	return cfg.Server
}

func newController(cfg *config.ClientConfig) (control.Controller, func() error, error) {
	if cfg.Transport == config.TransportHTTP {
		return jsonrpc.NewClient(cfg.HTTPURL, cfg.Timeout), func() error { return nil }, nil
	}
	client, err := rpc.Dial(cfg.Server)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func runSet(ctl control.Controller, cfg *config.ClientConfig, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(stderr)
	freq := fs.Float64("freq", 915.0, "RF frequency in MHz")
	gain := fs.Float64("gain", 20.0, "RF gain in dB")
	id := fs.String("id", cfg.DeviceID, "device ID to configure")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := ctl.ApplySettings(ctx, control.SettingsRequest{FrequencyMHz: *freq, GainDB: *gain, DeviceID: *id})
	return report(stdout, stderr, resp, err)
}

func runStatus(ctl control.Controller, cfg *config.ClientConfig, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", cfg.DeviceID, "device ID to query")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := ctl.GetStatus(ctx, control.StatusRequest{DeviceID: *id})
	var out *control.SettingsResponse
	if resp != nil {
		out = &control.SettingsResponse{Success: resp.Success, StatusText: resp.StatusText}
	}
	return report(stdout, stderr, out, err)
}

func runUI(ctl control.Controller, cfg *config.ClientConfig, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	fs.SetOutput(stderr)
	freq := fs.Float64("freq", 915.0, "initial frequency in MHz")
	gain := fs.Float64("gain", 20.0, "initial gain in dB")
	id := fs.String("id", cfg.DeviceID, "initial device ID")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	defaults := tui.Defaults{FrequencyMHz: *freq, GainDB: *gain, DeviceID: *id}
	if err := tui.Run(ctl, target(cfg), defaults, cfg.Timeout); err != nil {
		fmt.Fprintf(stderr, "rfctl: %v\n", err)
		return 1
	}
	return 0
}

// report prints the response, if any, and the error, if any.
func report(stdout, stderr io.Writer, resp *control.SettingsResponse, err error) int {
	if resp != nil {
		fmt.Fprintf(stdout, "Server Response: Success=%t, Status='%s'\n", resp.Success, resp.StatusText)
	}
	if err != nil {
		fmt.Fprintln(stderr, tui.DescribeError(err))
		return 1
	}
	return 0
}
