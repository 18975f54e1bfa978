// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package events publishes poll outcomes so downstream HR processing can
// react to new punches without polling the attendance table.
//
// Topics are "<prefix>.punches.synced" and "<prefix>.device.offline".
// Payloads are JSON. Publishing is best effort: a failed publish is
// logged and counted, never allowed to fail a sync.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/punchsync/internal/models"
)

// Topic suffixes appended to the configured prefix.
const (
	TopicPunchesSynced = "punches.synced"
	TopicDeviceOffline = "device.offline"
)

// Punch is one newly stored attendance row.
type Punch struct {
	BiometricID string    `json:"biometric_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	PunchTime   time.Time `json:"punch_time"`
	Direction   string    `json:"direction"`
}

// PunchesSynced is emitted after a device's records are written.
type PunchesSynced struct {
	EventID       string    `json:"event_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Device        string    `json:"device"`
	Address       string    `json:"address"`
	DeviceID      int64     `json:"device_id"`
	Synced        int       `json:"synced"`
	Duplicates    int       `json:"duplicates"`
	Unmatched     int       `json:"unmatched"`
	Errors        int       `json:"errors"`
	Punches       []Punch   `json:"punches,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DeviceOffline is emitted when a device fails its liveness probe.
type DeviceOffline struct {
	EventID       string    `json:"event_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Device        string    `json:"device"`
	Address       string    `json:"address"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewPunchesSynced builds an event from stored rows.
func NewPunchesSynced(device, address string, deviceID int64, stored []models.AttendanceLog) *PunchesSynced {
	punches := make([]Punch, 0, len(stored))
	for i := range stored {
		punches = append(punches, Punch{
			BiometricID: stored[i].BiometricID,
			UserID:      stored[i].UserID,
			PunchTime:   stored[i].PunchTime,
			Direction:   stored[i].Direction,
		})
	}
	return &PunchesSynced{
		EventID:    uuid.NewString(),
		Device:     device,
		Address:    address,
		DeviceID:   deviceID,
		Synced:     len(stored),
		Punches:    punches,
		OccurredAt: time.Now().UTC(),
	}
}

// NewDeviceOffline builds an offline event.
func NewDeviceOffline(device, address string, cause error) *DeviceOffline {
	ev := &DeviceOffline{
		EventID:    uuid.NewString(),
		Device:     device,
		Address:    address,
		OccurredAt: time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	return ev
}

// Publisher delivers poll events.
type Publisher interface {
	PublishPunchesSynced(ctx context.Context, ev *PunchesSynced) error
	PublishDeviceOffline(ctx context.Context, ev *DeviceOffline) error
	Close() error
}

// NoopPublisher discards events. Used when events are disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishPunchesSynced(context.Context, *PunchesSynced) error { return nil }
func (NoopPublisher) PublishDeviceOffline(context.Context, *DeviceOffline) error { return nil }
func (NoopPublisher) Close() error { return nil }
