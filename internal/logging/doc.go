// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package logging provides the process-wide zerolog logger for punchsync.
//
// The global logger is configured once from main with Init and then used
// through the package-level helpers:
//
//	logging.Info().Str("device", name).Int("records", n).Msg("Fetched punches")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Device fetch failed")
//
// Every poll cycle carries a short correlation ID in its context so all
// lines for one cycle can be grepped together.
//
// Two bridges let third-party libraries share the stream:
//
//   - NewSlogLogger feeds sutureslog (supervisor restarts and failures)
//   - NewWatermillAdapter feeds the watermill NATS publisher
//
// Always terminate log chains with .Msg() or .Send(); an unterminated
// event is never written.
package logging
