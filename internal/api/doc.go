// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package api provides the local HTTP control surface of the poller.

The control API is how an operator (or the punchsync binary run with
-status / -stop) talks to a running daemon. It binds to loopback by
default and carries no authentication; expose it only on trusted
interfaces.

Routes:

	GET  /api/v1/health/live   process is up
	GET  /api/v1/health/ready  database reachable and poller running
	GET  /api/v1/status        poller state and the last cycle summary
	POST /api/v1/sync          run a cycle now, optionally for one device
	POST /api/v1/stop          shut the daemon down
	GET  /metrics              Prometheus exposition

Responses use one envelope:

	{"success": true,  "data": {...}, "meta": {...}}
	{"success": false, "error": {"code": "...", "message": "..."}, "meta": {...}}

Client wraps the same routes for the command line.
*/
package api
