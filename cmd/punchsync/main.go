// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// options are the parsed command-line flags.
type options struct {
	configPath string
	interval   int
	daemon     bool
	once       bool
	status     bool
	stop       bool
	probe      string
	controlURL string
}

// action returns which one-shot mode was requested, or "" for the daemon.
func (o options) action() (string, error) {
	var picked []string
	if o.once {
		picked = append(picked, "once")
	}
	if o.status {
		picked = append(picked, "status")
	}
	if o.stop {
		picked = append(picked, "stop")
	}
	if o.probe != "" {
		picked = append(picked, "probe")
	}
	switch len(picked) {
	case 0:
		return "", nil
	case 1:
		return picked[0], nil
	default:
		return "", fmt.Errorf("flags -%s and -%s are mutually exclusive", picked[0], picked[1])
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("punchsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to the YAML config file")
	fs.IntVar(&o.interval, "interval", 0, "poll interval in seconds (overrides poll.interval)")
	fs.BoolVar(&o.daemon, "daemon", false, "run as a service with JSON logs")
	fs.BoolVar(&o.once, "once", false, "run one sync cycle and exit")
	fs.BoolVar(&o.status, "status", false, "print the state of a running daemon")
	fs.BoolVar(&o.stop, "stop", false, "ask a running daemon to shut down")
	fs.StringVar(&o.probe, "probe", "", "probe one terminal at host:port and exit")
	fs.StringVar(&o.controlURL, "control", "", "control API URL of a running daemon")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.interval < 0 {
		return o, errors.New("-interval must be positive")
	}
	if _, err := o.action(); err != nil {
		return o, err
	}
	return o, nil
}

// applyOverrides folds flag overrides into the loaded configuration.
func applyOverrides(cfg *config.Config, o options) {
	if o.interval > 0 {
		cfg.Poll.Interval = time.Duration(o.interval) * time.Second
	}
}

// controlURL returns the control API base URL.
func controlURL(cfg *config.Config, o options) string {
	if o.controlURL != "" {
		return o.controlURL
	}
	return "http://" + cfg.Control.Addr()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	action, _ := opts.action()

	cfg, err := config.LoadWithKoanf(opts.configPath)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	applyOverrides(cfg, opts)

	logCfg := cfg.LoggingSettings()
	if opts.daemon {
		logCfg.Format = "json"
	}
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch action {
	case "status":
		err = runStatus(ctx, os.Stdout, controlURL(cfg, opts))
	case "stop":
		err = runStop(ctx, os.Stdout, controlURL(cfg, opts))
	case "probe":
		err = runProbe(ctx, os.Stdout, cfg, opts.probe)
	case "once":
		err = runOnce(ctx, os.Stdout, cfg)
	default:
		err = runDaemon(ctx, cfg)
	}
	if err != nil {
		logging.Error().Err(err).Str("action", actionName(action)).Msg("Punchsync failed")
		return 1
	}
	return 0
}

func actionName(action string) string {
	if action == "" {
		return "daemon"
	}
	return action
}
