// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
schema.go - Database Schema Management

Tables:
  - devices: terminal directory (address, type, active flag, last_sync)
  - system_users: people with an optional biometric enrollment id
  - attendance_logs: one row per punch; unique per (device, enrollment, time)

The attendance uniqueness constraint is the last line of deduplication.
The sync engine checks existence first and inserts with ON CONFLICT DO
NOTHING, so a concurrent writer cannot produce a duplicate row.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

var tableQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS devices_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS devices (
		id BIGINT PRIMARY KEY DEFAULT nextval('devices_id_seq'),
		name TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 4370,
		device_type TEXT NOT NULL DEFAULT 'zkteco',
		active BOOLEAN NOT NULL DEFAULT true,
		office TEXT,
		last_sync TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (ip_address, port)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS system_users_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS system_users (
		id BIGINT PRIMARY KEY DEFAULT nextval('system_users_id_seq'),
		username TEXT NOT NULL UNIQUE,
		full_name TEXT,
		biometric_id TEXT,
		active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE SEQUENCE IF NOT EXISTS attendance_logs_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS attendance_logs (
		id BIGINT PRIMARY KEY DEFAULT nextval('attendance_logs_id_seq'),
		device_id BIGINT NOT NULL,
		biometric_id TEXT NOT NULL,
		user_id BIGINT,
		punch_time TIMESTAMP NOT NULL,
		direction TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (device_id, biometric_id, punch_time)
	)`,
}

var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_devices_type_active ON devices(device_type, active)`,
	`CREATE INDEX IF NOT EXISTS idx_system_users_biometric ON system_users(biometric_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_punch_time ON attendance_logs(punch_time)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_user ON attendance_logs(user_id)`,
}

// createTables creates the database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// createIndexes creates lookup indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
