// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/punchsync/internal/cache"
	"github.com/tomtom215/punchsync/internal/database"
	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
)

// DefaultBatchSize is used when NewEngine is given a non-positive size.
const DefaultBatchSize = 50

// SyncResult counts what happened to one device's records. Unmatched
// punches are neither synced nor errors.
type SyncResult struct {
	DeviceID      int64
	Synced        int
	Errors        int
	Unmatched     int
	Duplicates    int
	NotRegistered bool

	// Stored holds the rows inserted by this call, in insert order.
	Stored []models.AttendanceLog
}

// Engine writes fetched punches to the attendance store.
type Engine struct {
	devices   DeviceDirectory
	users     UserDirectory
	store     AttendanceStore
	batchSize int
	seen      *cache.SeenPunches
}

// NewEngine returns an Engine. seen may be nil.
func NewEngine(devices DeviceDirectory, users UserDirectory, store AttendanceStore, batchSize int, seen *cache.SeenPunches) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		devices:   devices,
		users:     users,
		store:     store,
		batchSize: batchSize,
		seen:      seen,
	}
}

// userLookup memoizes directory answers for one SyncAttendance call.
type userLookup struct {
	user *models.SystemUser
	err  error
}

// SyncAttendance stores records fetched from host:port. The device must
// be registered in the directory; otherwise nothing is written and every
// record counts as an error. Records whose biometric id matches no active
// user are skipped. A record already stored is counted as a duplicate.
func (e *Engine) SyncAttendance(ctx context.Context, host string, port int, records []models.RawPunch) SyncResult {
	var result SyncResult
	if len(records) == 0 {
		return result
	}

	address := models.DeviceAddress(host, port)
	log := logging.Ctx(ctx).With().Str("device", address).Logger()

	device, err := e.devices.GetDeviceByAddress(ctx, host, port)
	if err != nil {
		result.Errors = len(records)
		if errors.Is(err, database.ErrDeviceNotFound) {
			result.NotRegistered = true
			metrics.SyncUnregisteredDevice.WithLabelValues(address).Inc()
			log.Warn().Int("records", len(records)).Msg("Device not registered, discarding punches")
		} else {
			log.Error().Err(err).Msg("Failed to resolve device")
		}
		metrics.RecordSyncResult(0, 0, 0, result.Errors)
		return result
	}
	result.DeviceID = device.ID

	users := make(map[string]userLookup)
	for start := 0; start < len(records); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			remaining := len(records) - start
			result.Errors += remaining
			log.Warn().Err(err).Int("remaining", remaining).Msg("Sync interrupted")
			break
		}

		end := min(start+e.batchSize, len(records))
		began := time.Now()
		for i := start; i < end; i++ {
			e.syncRecord(ctx, device, records[i], users, &result)
		}
		metrics.SyncBatchDuration.Observe(time.Since(began).Seconds())

		if releaser, ok := e.store.(BatchReleaser); ok {
			releaser.ReleaseBatch()
		}
	}

	metrics.RecordSyncResult(result.Synced, result.Duplicates, result.Unmatched, result.Errors)
	if result.Synced > 0 {
		metrics.SyncLastSuccess.WithLabelValues(device.Name).SetToCurrentTime()
	}

	log.Info().
		Int("synced", result.Synced).
		Int("duplicates", result.Duplicates).
		Int("unmatched", result.Unmatched).
		Int("errors", result.Errors).
		Msg("Attendance sync finished")
	return result
}

func (e *Engine) syncRecord(ctx context.Context, device *models.Device, rec models.RawPunch, users map[string]userLookup, result *SyncResult) {
	log := logging.Ctx(ctx)

	lookup, ok := users[rec.UserID]
	if !ok {
		user, err := e.users.GetUserByBiometricID(ctx, rec.UserID)
		lookup = userLookup{user: user, err: err}
		users[rec.UserID] = lookup
		if errors.Is(err, database.ErrUserNotFound) {
			log.Warn().Str("biometric_id", rec.UserID).Str("device", device.Name).Msg("No user for biometric id")
		}
	}
	switch {
	case errors.Is(lookup.err, database.ErrUserNotFound):
		result.Unmatched++
		return
	case lookup.err != nil:
		log.Error().Err(lookup.err).Str("biometric_id", rec.UserID).Msg("Failed to resolve user")
		result.Errors++
		return
	}

	punchTime := time.Unix(rec.Timestamp, 0).UTC()
	key := cache.NewPunchKey(device.ID, rec.UserID, punchTime)
	if e.seen.Seen(key) {
		result.Duplicates++
		return
	}

	exists, err := e.store.AttendanceExists(ctx, device.ID, rec.UserID, punchTime)
	if err != nil {
		log.Error().Err(err).Str("biometric_id", rec.UserID).Msg("Failed to check for existing punch")
		result.Errors++
		return
	}
	if exists {
		e.seen.Mark(key)
		result.Duplicates++
		return
	}

	userID := lookup.user.ID
	entry := &models.AttendanceLog{
		DeviceID:    device.ID,
		BiometricID: rec.UserID,
		UserID:      &userID,
		PunchTime:   punchTime,
		Direction:   rec.Direction,
	}
	created, err := e.store.CreateAttendanceLog(ctx, entry)
	if err != nil {
		log.Error().Err(err).Str("biometric_id", rec.UserID).Msg("Failed to store punch")
		result.Errors++
		return
	}
	e.seen.Mark(key)
	if !created {
		// Written by someone else between the check and the insert.
		result.Duplicates++
		return
	}
	result.Synced++
	result.Stored = append(result.Stored, *entry)
}
