// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package testinfra provides test doubles for the outside world.
//
// FakeTerminal is an in-process UDP server that speaks enough of the
// ZKTeco protocol for the client, registry and poller tests:
//
//	term := testinfra.NewFakeTerminal(t)
//	term.SetRecords(testinfra.Punch("77", ts, 0))
//	conn := zkteco.NewConn(term.Host(), term.Port(), zkteco.Options{})
//
// It can be told to go silent (timeouts), garble replies (bad magic) or
// reboot (invalidate the current session).
package testinfra
