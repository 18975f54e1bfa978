// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package models

import "time"

// Punch directions. Terminals report a punch type byte; 0 is check-in
// and every other value is treated as check-out.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// DirectionFromStatus maps a terminal punch type byte to a direction.
func DirectionFromStatus(status uint8) string {
	if status == 0 {
		return DirectionIn
	}
	return DirectionOut
}

// RawPunch is one attendance record as read off a terminal. It is never
// stored as-is; the sync engine turns it into an AttendanceLog.
type RawPunch struct {
	// UserID is the terminal-local enrollment number, compared as a
	// string against SystemUser.BiometricID.
	UserID        string    `json:"user_id"`
	Timestamp     int64     `json:"timestamp"`
	PunchTime     time.Time `json:"punch_time"`
	Direction     string    `json:"direction"`
	Status        uint8     `json:"status"`
	DeviceAddress string    `json:"device_address"`
}

// AttendanceLog is a persisted punch. (DeviceID, BiometricID, PunchTime)
// is unique.
type AttendanceLog struct {
	ID          int64     `json:"id" db:"id"`
	DeviceID    int64     `json:"device_id" db:"device_id"`
	BiometricID string    `json:"biometric_id" db:"biometric_id"`
	UserID      *int64    `json:"user_id,omitempty" db:"user_id"`
	PunchTime   time.Time `json:"punch_time" db:"punch_time"`
	Direction   string    `json:"direction" db:"direction"`
	Processed   bool      `json:"processed" db:"processed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
