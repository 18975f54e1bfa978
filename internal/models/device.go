// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package models

import (
	"net"
	"strconv"
	"time"
)

// Device is one registered attendance terminal. The device directory
// owns these rows; the poller only updates LastSync.
type Device struct {
	ID         int64      `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	Port       int        `json:"port" db:"port"`
	DeviceType string     `json:"device_type" db:"device_type"`
	Active     bool       `json:"active" db:"active"`
	Office     string     `json:"office,omitempty" db:"office"`
	LastSync   *time.Time `json:"last_sync,omitempty" db:"last_sync"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Address returns the "host:port" key used by the connection registry.
func (d *Device) Address() string {
	return DeviceAddress(d.IPAddress, d.Port)
}

// DeviceAddress joins host and port the same way everywhere.
func DeviceAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// DeviceInfo is the reply to a liveness probe. Terminals report far more
// (firmware, capacity counters) but only reachability is used.
type DeviceInfo struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Status      string    `json:"status"`
	RespondedAt time.Time `json:"responded_at"`
}

// SystemUser is an HR user that may carry a terminal enrollment.
type SystemUser struct {
	ID          int64  `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	FullName    string `json:"full_name,omitempty" db:"full_name"`
	BiometricID string `json:"biometric_id,omitempty" db:"biometric_id"`
	Active      bool   `json:"active" db:"active"`
}
