// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package metrics defines the Prometheus collectors exported on /metrics.

Collectors are registered with the default registry through promauto at
package init, the same way across the codebase:

  - poll_*: cycle counts and durations, per-device fetch outcome
  - sync_*: punches written, skipped as duplicate or unmatched, failed
  - device_*: terminal reachability and connect failures
  - circuit_breaker_*: per-device breaker state
  - duckdb_*: attendance store query latency
  - api_*: control API requests
  - events_*: NATS publish results

Device labels use the host:port address, which is bounded by the number
of registered terminals.
*/
package metrics
