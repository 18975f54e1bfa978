// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package config

import (
	"time"
)

// Config holds all punchsync configuration.
//
// Loading order (see LoadWithKoanf):
//  1. Defaults from defaultConfig
//  2. Optional YAML file
//  3. Environment variables
//
// Config is immutable after loading and safe for concurrent reads.
type Config struct {
	Device     DeviceConfig     `koanf:"device"`
	Poll       PollConfig       `koanf:"poll"`
	Sync       SyncConfig       `koanf:"sync"`
	Database   DatabaseConfig   `koanf:"database"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Events     EventsConfig     `koanf:"events"`
	Control    ControlConfig    `koanf:"control"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`

	// Devices are registered into the device directory at startup when
	// they are not already present. Optional; an external HR backend
	// normally owns the directory.
	Devices []DeviceSeed `koanf:"devices" validate:"dive"`

	// Users are biometric enrollments registered at startup.
	Users []UserSeed `koanf:"users" validate:"dive"`
}

// DeviceConfig controls the terminal wire client.
type DeviceConfig struct {
	// Timeout bounds every socket round trip. Default: 5s
	Timeout time.Duration `koanf:"timeout" validate:"gte=100ms,lte=1m"`

	// ReadBufferSize is the maximum reply datagram accepted. Default: 1024
	ReadBufferSize int `koanf:"read_buffer_size" validate:"gte=64,lte=65535"`

	// Timezone is the zone punch timestamps are rendered in. Terminals
	// keep wall-clock time with no zone of their own. Default: Local
	Timezone string `koanf:"timezone" validate:"required"`

	// BreakerFailures is the number of consecutive failed fetches after
	// which a device is skipped for BreakerTimeout. 0 disables.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
}

// PollConfig controls the background poll loop.
type PollConfig struct {
	// Interval between cycles and the per-device coalescing window. Default: 5m
	Interval time.Duration `koanf:"interval" validate:"gte=1s"`

	// DeviceType selects which directory rows are polled. Default: zkteco
	DeviceType string `koanf:"device_type" validate:"required"`

	// FetchMode is "lookback" (trailing Lookback window every cycle) or
	// "incremental" (since the last fetch minus Overlap).
	FetchMode string        `koanf:"fetch_mode" validate:"oneof=lookback incremental"`
	Lookback  time.Duration `koanf:"lookback" validate:"gte=1m"`
	Overlap   time.Duration `koanf:"overlap" validate:"gte=0"`

	// StopTimeout bounds how long Stop waits for the loop. Default: 5s
	StopTimeout time.Duration `koanf:"stop_timeout" validate:"gte=0"`
}

// SyncConfig controls how fetched punches are written.
type SyncConfig struct {
	BatchSize int `koanf:"batch_size" validate:"gte=1,lte=10000"`

	// SeenCacheSize and SeenCacheTTL size the in-process cache of punches
	// already written. 0 size disables the cache.
	SeenCacheSize int           `koanf:"seen_cache_size" validate:"gte=0"`
	SeenCacheTTL  time.Duration `koanf:"seen_cache_ttl" validate:"gte=0"`

	// ManualMinInterval throttles operator-triggered syncs.
	ManualMinInterval time.Duration `koanf:"manual_min_interval" validate:"gte=0"`
}

// DatabaseConfig configures the DuckDB attendance store.
type DatabaseConfig struct {
	// Path is the DuckDB file. ":memory:" is accepted for tests.
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// CheckpointConfig configures the BadgerDB store for per-device
// last-fetch times, so coalescing survives restarts.
type CheckpointConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true"`
}

// EventsConfig configures NATS publishing of sync results.
type EventsConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url" validate:"required_if=Enabled true"`
	JetStream     bool          `koanf:"jetstream"`
	TopicPrefix   string        `koanf:"topic_prefix" validate:"required"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// ControlConfig configures the local HTTP control surface used by
// `punchsync -status` and `punchsync -stop`.
type ControlConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host" validate:"required_if=Enabled true"`
	Port            int           `koanf:"port" validate:"gte=0,lte=65535"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gte=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig feeds supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gte=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// DeviceSeed is one terminal declared in configuration.
type DeviceSeed struct {
	Name       string `koanf:"name" validate:"required"`
	IPAddress  string `koanf:"ip_address" validate:"required,ip"`
	Port       int    `koanf:"port" validate:"gte=1,lte=65535"`
	DeviceType string `koanf:"device_type"`
	Office     string `koanf:"office"`
}

// UserSeed is one biometric enrollment declared in configuration.
type UserSeed struct {
	Username    string `koanf:"username" validate:"required"`
	FullName    string `koanf:"full_name"`
	BiometricID string `koanf:"biometric_id" validate:"biometric_id"`
}

// Location resolves Device.Timezone. Validation guarantees it loads.
func (d DeviceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Addr returns the control listener address.
func (c ControlConfig) Addr() string {
	return joinHostPort(c.Host, c.Port)
}
