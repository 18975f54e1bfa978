// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/models"
)

// testDBSemaphore limits concurrent database creation. DuckDB's CGO
// driver misbehaves when many instances are opened in parallel.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Held until the test completes, not just during creation.
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func createTestDevice(t *testing.T, db *DB, name, ip string, port int) *models.Device {
	t.Helper()
	d := &models.Device{Name: name, IPAddress: ip, Port: port, DeviceType: "zkteco", Active: true}
	if err := db.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("CreateDevice(%s) error = %v", name, err)
	}
	return d
}

func TestNewCreatesFileDatabase(t *testing.T) {
	testDBSemaphore <- struct{}{}
	defer func() { <-testDBSemaphore }()

	path := filepath.Join(t.TempDir(), "nested", "punchsync.duckdb")
	db, err := New(&config.DatabaseConfig{Path: path, MaxMemory: "128MB", Threads: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	createTestDevice(t, db, "Front Door", "10.0.0.5", 4370)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen: schema creation is idempotent and rows survive.
	db, err = New(&config.DatabaseConfig{Path: path, MaxMemory: "128MB", Threads: 1})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()

	devices, err := db.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "Front Door" {
		t.Errorf("devices after reopen = %+v", devices)
	}
}

func TestDevices(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	front := createTestDevice(t, db, "Front Door", "10.0.0.5", 4370)
	back := createTestDevice(t, db, "Back Door", "10.0.0.6", 4370)
	other := &models.Device{Name: "Turnstile", IPAddress: "10.0.0.7", Port: 4370, DeviceType: "suprema", Active: true}
	if err := db.CreateDevice(ctx, other); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	t.Run("duplicate address rejected", func(t *testing.T) {
		err := db.CreateDevice(ctx, &models.Device{Name: "Dup", IPAddress: "10.0.0.5", Port: 4370})
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("CreateDevice() error = %v, want ErrDeviceExists", err)
		}
	})

	t.Run("list active filters type and active flag", func(t *testing.T) {
		if err := db.SetDeviceActive(ctx, back.ID, false); err != nil {
			t.Fatalf("SetDeviceActive() error = %v", err)
		}
		devices, err := db.ListActiveDevices(ctx, "zkteco")
		if err != nil {
			t.Fatalf("ListActiveDevices() error = %v", err)
		}
		if len(devices) != 1 || devices[0].ID != front.ID {
			t.Errorf("ListActiveDevices() = %+v, want only %d", devices, front.ID)
		}
	})

	t.Run("get by address", func(t *testing.T) {
		got, err := db.GetDeviceByAddress(ctx, "10.0.0.5", 4370)
		if err != nil {
			t.Fatalf("GetDeviceByAddress() error = %v", err)
		}
		if got.ID != front.ID || got.Name != "Front Door" || got.LastSync != nil {
			t.Errorf("GetDeviceByAddress() = %+v", got)
		}

		_, err = db.GetDeviceByAddress(ctx, "10.0.0.5", 4371)
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("unknown port error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("update last sync", func(t *testing.T) {
		at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
		if err := db.UpdateLastSync(ctx, front.ID, at); err != nil {
			t.Fatalf("UpdateLastSync() error = %v", err)
		}
		got, err := db.GetDeviceByAddress(ctx, "10.0.0.5", 4370)
		if err != nil {
			t.Fatalf("GetDeviceByAddress() error = %v", err)
		}
		if got.LastSync == nil || !got.LastSync.Equal(at) {
			t.Errorf("LastSync = %v, want %v", got.LastSync, at)
		}

		if err := db.UpdateLastSync(ctx, 9999, at); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("UpdateLastSync(missing) error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	alice := &models.SystemUser{Username: "alice", FullName: "Alice Adams", BiometricID: "77", Active: true}
	if err := db.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	gone := &models.SystemUser{Username: "bob", BiometricID: "88", Active: false}
	if err := db.CreateUser(ctx, gone); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := db.CreateUser(ctx, &models.SystemUser{Username: "alice"}); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate username error = %v, want ErrUsernameExists", err)
	}

	got, err := db.GetUserByBiometricID(ctx, "77")
	if err != nil {
		t.Fatalf("GetUserByBiometricID() error = %v", err)
	}
	if got.ID != alice.ID || got.FullName != "Alice Adams" {
		t.Errorf("GetUserByBiometricID() = %+v", got)
	}

	for _, id := range []string{"88", "999", "077", ""} {
		if _, err := db.GetUserByBiometricID(ctx, id); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("GetUserByBiometricID(%q) error = %v, want ErrUserNotFound", id, err)
		}
	}
}

func TestAttendance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := createTestDevice(t, db, "Front Door", "10.0.0.5", 4370)
	userID := int64(1)
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	entry := &models.AttendanceLog{
		DeviceID:    device.ID,
		BiometricID: "77",
		UserID:      &userID,
		PunchTime:   at,
		Direction:   models.DirectionIn,
	}

	exists, err := db.AttendanceExists(ctx, device.ID, "77", at)
	if err != nil || exists {
		t.Fatalf("AttendanceExists() before insert = %v, %v", exists, err)
	}

	inserted, err := db.CreateAttendanceLog(ctx, entry)
	if err != nil || !inserted {
		t.Fatalf("CreateAttendanceLog() = %v, %v", inserted, err)
	}
	if entry.ID == 0 {
		t.Error("expected ID to be assigned")
	}

	exists, err = db.AttendanceExists(ctx, device.ID, "77", at)
	if err != nil || !exists {
		t.Errorf("AttendanceExists() after insert = %v, %v", exists, err)
	}

	// Same triple again is silently skipped.
	dup := *entry
	dup.ID = 0
	inserted, err = db.CreateAttendanceLog(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate CreateAttendanceLog() error = %v", err)
	}
	if inserted {
		t.Error("duplicate punch was inserted")
	}

	// A different second is a different punch.
	later := *entry
	later.ID = 0
	later.PunchTime = at.Add(time.Second)
	later.Direction = models.DirectionOut
	if inserted, err := db.CreateAttendanceLog(ctx, &later); err != nil || !inserted {
		t.Fatalf("CreateAttendanceLog(later) = %v, %v", inserted, err)
	}

	n, err := db.CountAttendance(ctx)
	if err != nil {
		t.Fatalf("CountAttendance() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountAttendance() = %d, want 2", n)
	}

	logs, err := db.ListAttendance(ctx, device.ID)
	if err != nil {
		t.Fatalf("ListAttendance() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("ListAttendance() len = %d, want 2", len(logs))
	}
	if logs[0].Direction != models.DirectionIn || logs[1].Direction != models.DirectionOut {
		t.Errorf("directions = %s, %s", logs[0].Direction, logs[1].Direction)
	}
	if logs[0].Processed {
		t.Error("new punches must be unprocessed")
	}
	if logs[0].UserID == nil || *logs[0].UserID != userID {
		t.Errorf("UserID = %v, want %d", logs[0].UserID, userID)
	}

	// Statement cache is rebuilt transparently after a release.
	db.ReleaseBatch()
	db.RecycleConnections()
	if _, err := db.AttendanceExists(ctx, device.ID, "77", at); err != nil {
		t.Errorf("AttendanceExists() after release error = %v", err)
	}
}

func TestStatementCache_ReleaseDuringConcurrentReads(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateDevice(ctx, &models.Device{Name: "Front Door", IPAddress: "10.0.0.5", Port: 4370, DeviceType: "zkteco", Active: true}); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	const readers = 4
	errs := make(chan error, readers)
	var wg sync.WaitGroup
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				devices, err := db.ListActiveDevices(ctx, "zkteco")
				if err != nil {
					errs <- err
					return
				}
				if len(devices) != 1 {
					errs <- fmt.Errorf("got %d devices, want 1", len(devices))
					return
				}
			}
		}()
	}
	for range 50 {
		db.ReleaseBatch()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("ListActiveDevices() during cache release: %v", err)
	}
}

func TestSeedFromConfig(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	devices := []config.DeviceSeed{
		{Name: "Front Door", IPAddress: "10.0.0.5", Port: 4370},
		{Name: "Gate", IPAddress: "10.0.0.9", Port: 4370, DeviceType: "suprema"},
	}
	users := []config.UserSeed{{Username: "alice", BiometricID: "77"}}

	for i := 0; i < 2; i++ {
		if err := db.SeedFromConfig(ctx, devices, users, "zkteco"); err != nil {
			t.Fatalf("SeedFromConfig() pass %d error = %v", i, err)
		}
	}

	all, err := db.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("devices = %d, want 2", len(all))
	}
	if all[0].DeviceType != "zkteco" || all[1].DeviceType != "suprema" {
		t.Errorf("device types = %s, %s", all[0].DeviceType, all[1].DeviceType)
	}
	if _, err := db.GetUserByBiometricID(ctx, "77"); err != nil {
		t.Errorf("seeded user missing: %v", err)
	}
}
