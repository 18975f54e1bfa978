// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package zkteco speaks the ZKTeco terminal UDP protocol.
//
// Every datagram, in both directions, is a 20-byte little-endian header
// followed by a command specific payload:
//
//	offset 0  uint32 magic        0x7D825050
//	offset 4  uint32 length       header + payload
//	offset 8  uint16 command
//	offset 10 uint16 checksum     low 16 bits of the byte sum, this field as zero
//	offset 12 uint32 session id   assigned by the terminal on connect
//	offset 16 uint32 reply id     incremented by the client per command
//
// Conn is not safe for concurrent use by design of the protocol (one
// outstanding request per session); it serializes callers internally.
//
// Device info and user list parsing are deliberately shallow: the probe
// only proves the terminal answers, and the user list is read as a flat
// array of enrollment numbers.
package zkteco
