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

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
)

// AttendanceExists reports whether a punch with the same device,
// enrollment id and time is already stored.
func (db *DB) AttendanceExists(ctx context.Context, deviceID int64, biometricID string, punchTime time.Time) (_ bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "attendance_logs", time.Since(start), err) }()

	stmt, release, err := db.prepared(ctx, `SELECT EXISTS (
		SELECT 1 FROM attendance_logs WHERE device_id = ? AND biometric_id = ? AND punch_time = ?
	)`)
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	if err = stmt.QueryRowContext(ctx, deviceID, biometricID, punchTime).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}
	return exists, nil
}

// CreateAttendanceLog inserts a punch. It returns false without error
// when an identical punch already exists, so a concurrent writer that
// got there first never fails the caller.
func (db *DB) CreateAttendanceLog(ctx context.Context, entry *models.AttendanceLog) (_ bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "attendance_logs", time.Since(start), err) }()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: *entry.UserID, Valid: true}
	}

	stmt, release, err := db.prepared(ctx, `INSERT INTO attendance_logs
		(device_id, biometric_id, user_id, punch_time, direction, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`)
	if err != nil {
		return false, err
	}
	defer release()

	err = stmt.QueryRowContext(ctx, entry.DeviceID, entry.BiometricID, userID,
		entry.PunchTime, entry.Direction, entry.Processed, entry.CreatedAt).Scan(&entry.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert attendance log: %w", err)
	}
	return true, nil
}

// ListAttendance returns a device's punches in ascending time order.
func (db *DB) ListAttendance(ctx context.Context, deviceID int64) (_ []models.AttendanceLog, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "attendance_logs", time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, device_id, biometric_id, user_id, punch_time,
		direction, processed, created_at
		FROM attendance_logs WHERE device_id = ? ORDER BY punch_time, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer closeQuietly(rows)

	var logs []models.AttendanceLog
	for rows.Next() {
		var (
			l      models.AttendanceLog
			userID sql.NullInt64
		)
		if err = rows.Scan(&l.ID, &l.DeviceID, &l.BiometricID, &userID, &l.PunchTime,
			&l.Direction, &l.Processed, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance log: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			l.UserID = &id
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return logs, nil
}

// CountAttendance returns the number of stored punches.
func (db *DB) CountAttendance(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return n, nil
}

// ReleaseBatch drops cached prepared statements between sync batches so
// a long sync does not pin connection-local state.
func (db *DB) ReleaseBatch() {
	db.clearStatementCache()
}

// RecycleConnections closes idle pooled connections before a poll cycle
// so a connection broken during the idle interval is not reused.
func (db *DB) RecycleConnections() {
	if db.cfg.Path == ":memory:" {
		// The single pinned connection is the database.
		return
	}
	db.clearStatementCache()
	db.conn.SetMaxIdleConns(0)
	db.conn.SetMaxIdleConns(2)
	logging.Trace().Msg("Database idle connections recycled")
}
