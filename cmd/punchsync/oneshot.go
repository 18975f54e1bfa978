// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/punchsync/internal/api"
	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

// controlTimeout bounds -status and -stop round trips.
const controlTimeout = 10 * time.Second

func runStatus(ctx context.Context, w io.Writer, baseURL string) error {
	status, err := api.NewClient(baseURL, controlTimeout).Status(ctx)
	if err != nil {
		return fmt.Errorf("query daemon at %s: %w", baseURL, err)
	}
	printStatus(w, status)
	return nil
}

func printStatus(w io.Writer, s *api.StatusResponse) {
	state := "stopped"
	if s.Poller.Running {
		state = "running"
	}
	fmt.Fprintf(w, "punchsync %s: poller %s, uptime %s\n", s.Version, state,
		(time.Duration(s.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(w, "interval: %s, devices: %d, open sessions: %d\n",
		time.Duration(s.Poller.IntervalSecs*float64(time.Second)), s.Poller.DeviceCount, len(s.Poller.Connections))

	names := make([]string, 0, len(s.Poller.LastFetchTimes))
	for name := range s.Poller.LastFetchTimes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s last fetch %s\n", name, s.Poller.LastFetchTimes[name].Format(time.RFC3339))
	}
	if s.LastCycle != nil {
		printSummary(w, s.LastCycle)
	}
}

func runStop(ctx context.Context, w io.Writer, baseURL string) error {
	if err := api.NewClient(baseURL, controlTimeout).Stop(ctx); err != nil {
		return fmt.Errorf("stop daemon at %s: %w", baseURL, err)
	}
	fmt.Fprintln(w, "stop requested")
	return nil
}

// runOnce runs a single cycle over every active device.
func runOnce(ctx context.Context, w io.Writer, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	summary, err := c.manager.RunOnce(ctx)
	if err != nil {
		return err
	}
	printSummary(w, summary)
	return nil
}

func printSummary(w io.Writer, s *models.CycleSummary) {
	fetched, synced, errs := s.Totals()
	fmt.Fprintf(w, "cycle %s (%s) at %s: %d fetched, %d synced, %d errors in %s\n",
		s.CorrelationID, s.Trigger, s.StartedAt.Format(time.RFC3339), fetched, synced, errs, s.Duration.Round(time.Millisecond))
	for _, d := range s.Devices {
		switch {
		case d.Skipped:
			fmt.Fprintf(w, "  %-24s skipped: %s\n", d.Device, d.Error)
		case !d.Online:
			fmt.Fprintf(w, "  %-24s offline: %s\n", d.Device, d.Error)
		default:
			fmt.Fprintf(w, "  %-24s fetched %d, synced %d, duplicates %d, unmatched %d, errors %d\n",
				d.Device, d.Fetched, d.Synced, d.Duplicates, d.Unmatched, d.Errors)
		}
	}
}

// runProbe connects to one terminal and reports what it holds.
func runProbe(ctx context.Context, w io.Writer, cfg *config.Config, target string) error {
	host, port, err := splitTarget(target)
	if err != nil {
		return err
	}

	conn := zkteco.NewConn(host, port, zkteco.Options{
		Timeout:        cfg.Device.Timeout,
		ReadBufferSize: cfg.Device.ReadBufferSize,
		Location:       cfg.Device.Location(),
	})
	defer conn.Disconnect()

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", conn.Addr(), err)
	}
	info, err := conn.GetDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("probe %s: %w", conn.Addr(), err)
	}
	records, err := conn.GetAttendanceLogs(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("read attendance from %s: %w", conn.Addr(), err)
	}

	fmt.Fprintf(w, "%s %s (session %d), %d punches in the default window\n",
		models.DeviceAddress(info.Host, info.Port), info.Status, conn.SessionID(), len(records))
	return nil
}

// splitTarget parses host:port. A bare host gets the default port.
func splitTarget(target string) (string, int, error) {
	if !strings.Contains(target, ":") {
		if target == "" {
			return "", 0, errors.New("-probe needs host:port")
		}
		return target, zkteco.DefaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid -probe target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid -probe port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid -probe target %q: missing host", target)
	}
	return host, port, nil
}
