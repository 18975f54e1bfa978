// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/punchsync/internal/cache"
	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/database"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/testinfra"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func checkResult(t *testing.T, got SyncResult, synced, duplicates, unmatched, errs int) {
	t.Helper()
	if got.Synced != synced || got.Duplicates != duplicates || got.Unmatched != unmatched || got.Errors != errs {
		t.Errorf("result = synced %d dup %d unmatched %d errors %d, want %d %d %d %d",
			got.Synced, got.Duplicates, got.Unmatched, got.Errors, synced, duplicates, unmatched, errs)
	}
}

func TestSyncAttendance_Idempotent(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addDevice("Front Door", "10.0.0.5", 4370)
	dir.addUser("alice", "77")
	dir.addUser("bob", "78")
	engine := NewEngine(dir, dir, dir, 50, nil)

	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("78", baseTime.Add(time.Minute), 1),
		testinfra.Punch("77", baseTime.Add(9*time.Hour), 1),
	}

	first := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)
	checkResult(t, first, 3, 0, 0, 0)
	if len(first.Stored) != 3 {
		t.Errorf("Stored = %d rows, want 3", len(first.Stored))
	}

	second := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)
	checkResult(t, second, 0, 3, 0, 0)
	if len(second.Stored) != 0 {
		t.Errorf("second call stored %d rows", len(second.Stored))
	}
	if n := dir.logCount(); n != 3 {
		t.Errorf("store has %d rows, want 3", n)
	}
}

func TestSyncAttendance_UnmatchedUsersExcluded(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addDevice("Front Door", "10.0.0.5", 4370)
	dir.addUser("alice", "77")
	engine := NewEngine(dir, dir, dir, 50, nil)

	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("999", baseTime.Add(time.Minute), 0),
		testinfra.Punch("999", baseTime.Add(2*time.Minute), 1),
	}
	result := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)

	checkResult(t, result, 1, 0, 2, 0)
	if n := dir.logCount(); n != 1 {
		t.Errorf("store has %d rows, want 1", n)
	}
	// Lookups are memoised per call.
	if n := dir.userLookups["999"]; n != 1 {
		t.Errorf("user 999 looked up %d times, want 1", n)
	}
	stored := result.Stored[0]
	if stored.BiometricID != "77" || stored.UserID == nil || *stored.UserID != dir.users["77"].ID {
		t.Errorf("stored row = %+v", stored)
	}
	if stored.Processed {
		t.Error("new rows must be stored unprocessed")
	}
	if stored.Direction != models.DirectionIn {
		t.Errorf("direction = %q", stored.Direction)
	}
}

func TestSyncAttendance_UnregisteredDevice(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addUser("alice", "77")
	engine := NewEngine(dir, dir, dir, 50, nil)

	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("77", baseTime.Add(time.Hour), 1),
	}
	result := engine.SyncAttendance(t.Context(), "10.9.9.9", 4370, records)

	checkResult(t, result, 0, 0, 0, 2)
	if !result.NotRegistered {
		t.Error("NotRegistered = false")
	}
	if n := dir.logCount(); n != 0 {
		t.Errorf("store has %d rows, want 0", n)
	}
	if dir.existsCalls != 0 {
		t.Errorf("store consulted %d times for an unregistered device", dir.existsCalls)
	}
}

func TestSyncAttendance_EmptyInput(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	engine := NewEngine(dir, dir, dir, 50, nil)

	result := engine.SyncAttendance(t.Context(), "10.9.9.9", 4370, nil)
	checkResult(t, result, 0, 0, 0, 0)
	if result.NotRegistered {
		t.Error("empty input should not consult the directory")
	}
}

func TestSyncAttendance_Batches(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addDevice("Front Door", "10.0.0.5", 4370)
	dir.addUser("alice", "77")
	engine := NewEngine(dir, dir, dir, 2, nil)

	var records []models.RawPunch
	for i := range 5 {
		records = append(records, testinfra.Punch("77", baseTime.Add(time.Duration(i)*time.Minute), 0))
	}
	result := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)

	checkResult(t, result, 5, 0, 0, 0)
	if dir.released != 3 {
		t.Errorf("ReleaseBatch called %d times, want 3", dir.released)
	}
}

func TestSyncAttendance_Cancelled(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addDevice("Front Door", "10.0.0.5", 4370)
	dir.addUser("alice", "77")
	engine := NewEngine(dir, dir, dir, 2, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("77", baseTime.Add(time.Minute), 0),
		testinfra.Punch("77", baseTime.Add(2*time.Minute), 0),
	}
	result := engine.SyncAttendance(ctx, "10.0.0.5", 4370, records)

	checkResult(t, result, 0, 0, 0, 3)
	if n := dir.logCount(); n != 0 {
		t.Errorf("store has %d rows after cancellation", n)
	}
}

func TestSyncAttendance_PerRecordErrors(t *testing.T) {
	t.Parallel()

	t.Run("user lookup failure", func(t *testing.T) {
		t.Parallel()
		dir := newMemDirectory()
		dir.addDevice("Front Door", "10.0.0.5", 4370)
		dir.userErr = errors.New("directory offline")
		engine := NewEngine(dir, dir, dir, 50, nil)

		result := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, []models.RawPunch{
			testinfra.Punch("77", baseTime, 0),
			testinfra.Punch("78", baseTime, 0),
		})
		checkResult(t, result, 0, 0, 0, 2)
	})

	t.Run("existence check failure", func(t *testing.T) {
		t.Parallel()
		dir := newMemDirectory()
		dir.addDevice("Front Door", "10.0.0.5", 4370)
		dir.addUser("alice", "77")
		dir.existsErr = errors.New("disk full")
		engine := NewEngine(dir, dir, dir, 50, nil)

		result := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, []models.RawPunch{
			testinfra.Punch("77", baseTime, 0),
			testinfra.Punch("999", baseTime, 0),
		})
		checkResult(t, result, 0, 0, 1, 1)
	})
}

func TestSyncAttendance_SeenCacheSkipsStore(t *testing.T) {
	t.Parallel()

	dir := newMemDirectory()
	dir.addDevice("Front Door", "10.0.0.5", 4370)
	dir.addUser("alice", "77")
	seen := cache.NewSeenPunches(100, time.Hour)
	engine := NewEngine(dir, dir, dir, 50, seen)

	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("77", baseTime.Add(time.Hour), 1),
	}
	engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)
	calls := dir.existsCalls

	result := engine.SyncAttendance(t.Context(), "10.0.0.5", 4370, records)
	checkResult(t, result, 0, 2, 0, 0)
	if dir.existsCalls != calls {
		t.Errorf("store consulted %d more times for cached punches", dir.existsCalls-calls)
	}
	if seen.Len() != 2 {
		t.Errorf("seen.Len() = %d, want 2", seen.Len())
	}
}

func TestSyncAttendance_DuckDB(t *testing.T) {
	t.Parallel()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := t.Context()
	if err := db.CreateDevice(ctx, &models.Device{Name: "Front Door", IPAddress: "10.0.0.5", Port: 4370, DeviceType: "zkteco", Active: true}); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := db.CreateUser(ctx, &models.SystemUser{Username: "alice", BiometricID: "77", Active: true}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	engine := NewEngine(db, db, db, 50, nil)
	records := []models.RawPunch{
		testinfra.Punch("77", baseTime, 0),
		testinfra.Punch("999", baseTime.Add(time.Minute), 0),
	}

	checkResult(t, engine.SyncAttendance(ctx, "10.0.0.5", 4370, records), 1, 0, 1, 0)
	checkResult(t, engine.SyncAttendance(ctx, "10.0.0.5", 4370, records), 0, 1, 1, 0)

	n, err := db.CountAttendance(ctx)
	if err != nil {
		t.Fatalf("CountAttendance() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountAttendance() = %d, want 1", n)
	}
}
