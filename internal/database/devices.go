// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
)

const deviceColumns = `id, name, ip_address, port, device_type, active, office, last_sync, created_at`

// CreateDevice registers a terminal. The device ID and CreatedAt are
// filled in on success.
func (db *DB) CreateDevice(ctx context.Context, device *models.Device) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "devices", time.Since(start), err) }()

	if device.DeviceType == "" {
		device.DeviceType = "zkteco"
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now()
	}

	query := `INSERT INTO devices (name, ip_address, port, device_type, active, office, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`

	row := db.conn.QueryRowContext(ctx, query,
		device.Name, device.IPAddress, device.Port, device.DeviceType,
		device.Active, nullString(device.Office), device.CreatedAt,
	)
	if err = row.Scan(&device.ID); err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// ListActiveDevices returns active devices of the given type ordered by id.
func (db *DB) ListActiveDevices(ctx context.Context, deviceType string) (_ []models.Device, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "devices", time.Since(start), err) }()

	stmt, release, err := db.prepared(ctx, `SELECT `+deviceColumns+`
		FROM devices WHERE device_type = ? AND active = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := stmt.QueryContext(ctx, deviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer closeQuietly(rows)

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// ListDevices returns every device, active or not.
func (db *DB) ListDevices(ctx context.Context) (_ []models.Device, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "devices", time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer closeQuietly(rows)

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// GetDeviceByAddress finds the device registered at host:port.
// Returns ErrDeviceNotFound when no row matches.
func (db *DB) GetDeviceByAddress(ctx context.Context, host string, port int) (_ *models.Device, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrDeviceNotFound) {
			metrics.RecordDBQuery("select", "devices", time.Since(start), nil)
			return
		}
		metrics.RecordDBQuery("select", "devices", time.Since(start), err)
	}()

	stmt, release, err := db.prepared(ctx, `SELECT `+deviceColumns+`
		FROM devices WHERE ip_address = ? AND port = ?`)
	if err != nil {
		return nil, err
	}
	defer release()
	device, err := scanDevice(stmt.QueryRowContext(ctx, host, port))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return device, err
}

// UpdateLastSync stamps a device's last successful sync.
func (db *DB) UpdateLastSync(ctx context.Context, deviceID int64, at time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update", "devices", time.Since(start), err) }()

	result, err := db.conn.ExecContext(ctx, `UPDATE devices SET last_sync = ? WHERE id = ?`, at, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	if n, rerr := result.RowsAffected(); rerr == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SetDeviceActive toggles whether the poller visits a device.
func (db *DB) SetDeviceActive(ctx context.Context, deviceID int64, active bool) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE devices SET active = ? WHERE id = ?`, active, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if n, rerr := result.RowsAffected(); rerr == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d        models.Device
		office   sql.NullString
		lastSync sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Name, &d.IPAddress, &d.Port, &d.DeviceType,
		&d.Active, &office, &lastSync, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	d.Office = office.String
	if lastSync.Valid {
		t := lastSync.Time
		d.LastSync = &t
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
