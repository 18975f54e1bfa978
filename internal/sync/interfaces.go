// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/punchsync/internal/checkpoint"
	"github.com/tomtom215/punchsync/internal/models"
)

// DeviceDirectory is the external register of terminals. Lookups that
// find nothing return database.ErrDeviceNotFound.
type DeviceDirectory interface {
	ListActiveDevices(ctx context.Context, deviceType string) ([]models.Device, error)
	GetDeviceByAddress(ctx context.Context, host string, port int) (*models.Device, error)
	UpdateLastSync(ctx context.Context, deviceID int64, at time.Time) error
}

// UserDirectory resolves terminal enrollment ids to system users.
// Unknown ids return database.ErrUserNotFound.
type UserDirectory interface {
	GetUserByBiometricID(ctx context.Context, biometricID string) (*models.SystemUser, error)
}

// AttendanceStore persists punches. CreateAttendanceLog returns false
// when an identical punch already exists.
type AttendanceStore interface {
	AttendanceExists(ctx context.Context, deviceID int64, biometricID string, punchTime time.Time) (bool, error)
	CreateAttendanceLog(ctx context.Context, entry *models.AttendanceLog) (bool, error)
}

// BatchReleaser is implemented by stores holding per-batch resources.
type BatchReleaser interface {
	ReleaseBatch()
}

// PoolRecycler is implemented by stores with a connection pool worth
// refreshing before each poll cycle.
type PoolRecycler interface {
	RecycleConnections()
}

// CheckpointStore persists per-device fetch times across restarts.
type CheckpointStore interface {
	Save(ctx context.Context, entry checkpoint.Entry) error
	LoadAll(ctx context.Context) (map[string]time.Time, error)
}

// Errors returned by the scheduler.
var (
	ErrAlreadyRunning = errors.New("poller is already running")
	ErrNotRunning     = errors.New("poller is not running")
	ErrSyncThrottled  = errors.New("manual sync requested too soon")
	ErrUnknownDevice  = errors.New("unknown device")
)

// Errors reported per device by the Fetcher.
var (
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrDeviceOffline     = errors.New("device did not answer probe")
	ErrBreakerOpen       = errors.New("device circuit breaker open")
)
