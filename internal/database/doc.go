// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package database is the DuckDB store behind the poller: the device
// directory, the user directory and the attendance log.
//
// # Files
//
//   - database.go: connection lifecycle, pool configuration, prepared statement cache
//   - schema.go: tables, sequences and indexes
//   - devices.go: device directory (ListActiveDevices, GetDeviceByAddress, UpdateLastSync)
//   - users.go: user directory (GetUserByBiometricID)
//   - attendance.go: attendance log (AttendanceExists, CreateAttendanceLog)
//   - seed.go: registering devices and users declared in configuration
//
// In a deployment where an HR backend owns these tables, only the
// sync package interfaces matter; DB is one implementation of them.
//
// # Thread Safety
//
// DB is safe for concurrent use. The prepared statement cache uses
// double-checked locking, and a statement handed out by the cache is
// held under its read lock until released, so clearing the cache
// between sync batches never closes a statement still in use.
//
// # Testing
//
// Tests open ":memory:" databases. DuckDB's CGO driver does not like
// many databases being created at once, so test helpers hold a
// package-level semaphore for the life of each test.
package database
