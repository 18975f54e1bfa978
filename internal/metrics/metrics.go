// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll Metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of poll cycles run",
		},
		[]string{"trigger"}, // "schedule", "manual", "once"
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle across all devices",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	PollLastCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_last_cycle_timestamp",
			Help: "Unix timestamp of the last completed poll cycle",
		},
	)

	DeviceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_device_fetch_duration_seconds",
			Help:    "Duration of one device fetch (probe and log download)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"device"},
	)

	DeviceFetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_device_fetch_total",
			Help: "Device fetch outcomes",
		},
		[]string{"device", "result"}, // "ok", "offline", "error", "skipped", "breaker_open"
	)

	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_records_fetched_total",
			Help: "Raw punch records downloaded from terminals",
		},
		[]string{"device"},
	)

	// Device Metrics
	DeviceOnline = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "device_online",
			Help: "Whether the terminal answered its last probe (1) or not (0)",
		},
		[]string{"device"},
	)

	DeviceConnectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_connect_failures_total",
			Help: "Failed terminal handshakes",
		},
		[]string{"device"},
	)

	RegistryConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "device_registry_connections",
			Help: "Terminal sessions currently cached",
		},
	)

	// Sync Metrics
	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_total",
			Help: "Punch records handled by the sync engine, by outcome",
		},
		[]string{"outcome"}, // "synced", "duplicate", "unmatched", "error"
	)

	SyncBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_batch_duration_seconds",
			Help:    "Duration of one sync batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncUnregisteredDevice = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_unregistered_device_total",
			Help: "Sync attempts for a terminal missing from the device directory",
		},
		[]string{"device"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last non-empty successful sync per device",
		},
		[]string{"device"},
	)

	SeenCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_seen_cache_hits_total",
			Help: "Punches skipped by the in-process seen cache",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published to NATS, by topic and result",
		},
		[]string{"topic", "result"}, // result: "ok", "error"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records a control API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDeviceFetch records one device's fetch outcome.
func RecordDeviceFetch(device, result string, records int, duration time.Duration) {
	DeviceFetchResults.WithLabelValues(device, result).Inc()
	if result == "skipped" || result == "breaker_open" {
		return
	}
	DeviceFetchDuration.WithLabelValues(device).Observe(duration.Seconds())
	if result == "ok" {
		DeviceOnline.WithLabelValues(device).Set(1)
		RecordsFetched.WithLabelValues(device).Add(float64(records))
	} else {
		DeviceOnline.WithLabelValues(device).Set(0)
	}
}

// RecordSyncResult adds one SyncAttendance call's counters.
func RecordSyncResult(synced, duplicates, unmatched, errs int) {
	SyncRecords.WithLabelValues("synced").Add(float64(synced))
	SyncRecords.WithLabelValues("duplicate").Add(float64(duplicates))
	SyncRecords.WithLabelValues("unmatched").Add(float64(unmatched))
	SyncRecords.WithLabelValues("error").Add(float64(errs))
}

// RecordPollCycle records a finished cycle.
func RecordPollCycle(trigger string, duration time.Duration) {
	PollCycles.WithLabelValues(trigger).Inc()
	PollCycleDuration.Observe(duration.Seconds())
	PollLastCycle.Set(float64(time.Now().Unix()))
}
