// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/registry"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

// DeviceFetchResult is one device's outcome within a fan-out.
type DeviceFetchResult struct {
	Device  models.Device
	Records []models.RawPunch
	Count   int

	// Online is true when the terminal answered its liveness probe.
	Online bool

	// Skipped is true when the device's breaker is open and no socket
	// traffic was attempted.
	Skipped bool

	Err      error
	Duration time.Duration
}

// Fetcher downloads punches from terminals through the registry.
type Fetcher struct {
	registry *registry.Registry
	breakers *deviceBreakers
}

// NewFetcher returns a Fetcher. breakerFailures of 0 disables the
// per-device circuit breaker.
func NewFetcher(reg *registry.Registry, breakerFailures uint32, breakerTimeout time.Duration) *Fetcher {
	return &Fetcher{
		registry: reg,
		breakers: newDeviceBreakers(breakerFailures, breakerTimeout),
	}
}

// FetchFromDevice returns the punches logged by host:port between start
// and end (nil means the trailing seven days). Any failure is logged and
// yields an empty slice.
func (f *Fetcher) FetchFromDevice(ctx context.Context, host string, port int, start, end *time.Time) []models.RawPunch {
	records, _, err := f.fetch(ctx, host, port, start, end)
	if err != nil {
		return []models.RawPunch{}
	}
	return records
}

// fetch resolves a session, probes it and downloads the log. online
// reports whether the probe succeeded.
func (f *Fetcher) fetch(ctx context.Context, host string, port int, start, end *time.Time) (records []models.RawPunch, online bool, err error) {
	log := logging.Ctx(ctx).With().Str("device", models.DeviceAddress(host, port)).Logger()

	client := f.registry.Get(ctx, host, port)
	if client == nil {
		return nil, false, ErrDeviceUnreachable
	}

	if _, err = client.GetDeviceInfo(ctx); errors.Is(err, zkteco.ErrUnauthorized) {
		// The terminal rebooted and forgot our session; handshake again.
		log.Info().Msg("Terminal session expired, reconnecting")
		f.registry.Evict(host, port)
		if client = f.registry.Get(ctx, host, port); client == nil {
			return nil, false, ErrDeviceUnreachable
		}
		_, err = client.GetDeviceInfo(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Terminal did not answer probe")
		f.registry.Evict(host, port)
		return nil, false, fmt.Errorf("%w: %w", ErrDeviceOffline, err)
	}

	records, err = client.GetAttendanceLogs(ctx, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to download attendance log")
		// A late reply would otherwise be read as the answer to the next command.
		f.registry.Evict(host, port)
		return nil, true, fmt.Errorf("download attendance log: %w", err)
	}
	return records, true, nil
}

// FetchDevice fetches one directory device under its circuit breaker,
// recording metrics. It never panics and never returns an error; the
// outcome is in the result.
func (f *Fetcher) FetchDevice(ctx context.Context, device models.Device, start, end *time.Time) (result DeviceFetchResult) {
	began := time.Now()
	result.Device = device
	result.Records = []models.RawPunch{}

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Str("device", device.Name).Interface("panic", r).Msg("Recovered from panic while fetching device")
			result.Err = fmt.Errorf("panic: %v", r)
			result.Records = []models.RawPunch{}
			result.Count = 0
		}
		result.Duration = time.Since(began)
		metrics.RecordDeviceFetch(device.Name, fetchOutcome(result), result.Count, result.Duration)
	}()

	records, err := f.breakers.execute(device.Name, func() ([]models.RawPunch, error) {
		recs, online, err := f.fetch(ctx, device.IPAddress, device.Port, start, end)
		result.Online = online
		return recs, err
	})
	switch {
	case errors.Is(err, ErrBreakerOpen):
		result.Skipped = true
		result.Err = err
		logging.Ctx(ctx).Debug().Str("device", device.Name).Msg("Skipping device with open circuit breaker")
	case err != nil:
		result.Err = err
	default:
		result.Records = records
		result.Count = len(records)
	}
	return result
}

func fetchOutcome(r DeviceFetchResult) string {
	switch {
	case r.Skipped:
		return "breaker_open"
	case r.Err == nil:
		return "ok"
	case !r.Online:
		return "offline"
	default:
		return "error"
	}
}

// FetchFromAllDevices fetches every device sequentially with the same
// window and returns outcomes keyed by device name. One device's failure
// never affects another's; cancellation stops the fan-out between
// devices and the remaining devices are reported with the context error.
func (f *Fetcher) FetchFromAllDevices(ctx context.Context, devices []models.Device, start, end *time.Time) map[string]DeviceFetchResult {
	results := make(map[string]DeviceFetchResult, len(devices))
	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			results[device.Name] = DeviceFetchResult{Device: device, Records: []models.RawPunch{}, Err: err}
			continue
		}
		result := f.FetchDevice(ctx, device, start, end)
		results[device.Name] = result

		event := logging.Ctx(ctx).Info()
		if result.Err != nil {
			event = logging.Ctx(ctx).Warn().Err(result.Err)
		}
		event.Str("device", device.Name).
			Bool("online", result.Online).
			Int("records", result.Count).
			Dur("duration", result.Duration).
			Msg("Device fetch finished")
	}
	return results
}

// BreakerState reports the named device's circuit breaker state.
func (f *Fetcher) BreakerState(device string) string {
	return f.breakers.state(device)
}

// ProcessForUser returns the records belonging to biometricID, oldest
// first. records is not modified.
func ProcessForUser(biometricID string, records []models.RawPunch) []models.RawPunch {
	out := make([]models.RawPunch, 0)
	for _, r := range records {
		if r.UserID == biometricID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
