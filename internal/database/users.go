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

// CreateUser registers a person. BiometricID may be empty for users
// without an enrollment.
func (db *DB) CreateUser(ctx context.Context, user *models.SystemUser) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "system_users", time.Since(start), err) }()

	query := `INSERT INTO system_users (username, full_name, biometric_id, active)
		VALUES (?, ?, ?, ?) RETURNING id`
	row := db.conn.QueryRowContext(ctx, query,
		user.Username, nullString(user.FullName), nullString(user.BiometricID), user.Active)
	if err = row.Scan(&user.ID); err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByBiometricID returns the active user enrolled as biometricID.
// Returns ErrUserNotFound when nobody matches. Inactive users are
// treated as unknown so their punches stay unattributed.
func (db *DB) GetUserByBiometricID(ctx context.Context, biometricID string) (_ *models.SystemUser, err error) {
	start := time.Now()
	defer func() {
		qerr := err
		if errors.Is(qerr, ErrUserNotFound) {
			qerr = nil
		}
		metrics.RecordDBQuery("select", "system_users", time.Since(start), qerr)
	}()

	stmt, release, err := db.prepared(ctx, `SELECT id, username, full_name, biometric_id, active
		FROM system_users WHERE biometric_id = ? AND active = true ORDER BY id LIMIT 1`)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		u        models.SystemUser
		fullName sql.NullString
		bioID    sql.NullString
	)
	err = stmt.QueryRowContext(ctx, biometricID).Scan(&u.ID, &u.Username, &fullName, &bioID, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.FullName = fullName.String
	u.BiometricID = bioID.String
	return &u, nil
}
