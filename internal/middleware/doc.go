// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package middleware provides HTTP middleware for the control API.

Key Components:

  - RequestID: UUID request ids, echoed in X-Request-ID and copied into
    the logging context together with a fresh correlation id
  - PrometheusMetrics: request count and latency per method, route
    pattern and status

Both are plain func(http.Handler) http.Handler values and compose with
chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Route labels use the chi route pattern ("/api/v1/status"), never the raw
path, so label cardinality stays bounded.
*/
package middleware
