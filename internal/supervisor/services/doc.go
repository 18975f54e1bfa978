// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package services provides suture.Service wrappers for the daemon's
long-running components.

Each wrapper translates a component's own lifecycle into suture's
context-aware Serve:

  - HTTPServerService: ListenAndServe / Shutdown of the control API
  - PollerService: Start / Stop of the poll scheduler

Serve returns ctx.Err() on orderly shutdown and a wrapped error when the
component fails, which tells the supervisor to restart it.
*/
package services
