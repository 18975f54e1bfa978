// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package config loads punchsync configuration with koanf v2.
//
// Example config.yaml:
//
//	poll:
//	  interval: 2m
//	  fetch_mode: incremental
//	device:
//	  timeout: 5s
//	  timezone: Africa/Nairobi
//	database:
//	  path: /var/lib/punchsync/attendance.duckdb
//	devices:
//	  - name: Front Door
//	    ip_address: 192.168.1.201
//	    port: 4370
//	users:
//	  - username: jdoe
//	    biometric_id: "77"
//
// Environment variables such as POLL_INTERVAL, DUCKDB_PATH and LOG_LEVEL
// override the file.
package config
