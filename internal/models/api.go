// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package models

import "time"

// PollerStatus is the scheduler snapshot served by GET /api/v1/status.
type PollerStatus struct {
	Running        bool                 `json:"running"`
	DeviceCount    int                  `json:"device_count"`
	LastFetchTimes map[string]time.Time `json:"last_fetch_times"`
	IntervalSecs   float64              `json:"interval_seconds"`
	Connections    []string             `json:"connections"`
}

// SyncTriggerRequest asks for an immediate sync of one or all devices.
// Start and End default to the configured lookback window.
type SyncTriggerRequest struct {
	Device string     `json:"device,omitempty" validate:"omitempty,max=128"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty" validate:"omitempty,gtfield=Start"`
}

// DeviceSyncSummary reports one device's part of a cycle.
type DeviceSyncSummary struct {
	Device        string `json:"device"`
	Address       string `json:"address"`
	Online        bool   `json:"online"`
	Skipped       bool   `json:"skipped,omitempty"`
	Fetched       int    `json:"fetched"`
	Synced        int    `json:"synced"`
	Duplicates    int    `json:"duplicates"`
	Unmatched     int    `json:"unmatched"`
	Errors        int    `json:"errors"`
	NotRegistered bool   `json:"not_registered,omitempty"`
	Error         string `json:"error,omitempty"`
}

// CycleSummary is the result of one poll cycle or manual trigger.
type CycleSummary struct {
	CorrelationID string              `json:"correlation_id"`
	Trigger       string              `json:"trigger"`
	StartedAt     time.Time           `json:"started_at"`
	Duration      time.Duration       `json:"duration_ns"`
	Devices       []DeviceSyncSummary `json:"devices"`
}

// Totals sums the per-device counters.
func (c *CycleSummary) Totals() (fetched, synced, errs int) {
	for _, d := range c.Devices {
		fetched += d.Fetched
		synced += d.Synced
		errs += d.Errors
	}
	return fetched, synced, errs
}
