// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/punchsync/config.yaml",
	"/etc/punchsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Timeout:         5 * time.Second,
			ReadBufferSize:  1024,
			Timezone:        "Local",
			BreakerFailures: 5,
			BreakerTimeout:  2 * time.Minute,
		},
		Poll: PollConfig{
			Interval:    5 * time.Minute,
			DeviceType:  "zkteco",
			FetchMode:   "lookback",
			Lookback:    7 * 24 * time.Hour,
			Overlap:     10 * time.Minute,
			StopTimeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			BatchSize:         50,
			SeenCacheSize:     10000,
			SeenCacheTTL:      8 * 24 * time.Hour,
			ManualMinInterval: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/punchsync.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = DuckDB default
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Path:    "/data/checkpoints",
		},
		Events: EventsConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			JetStream:     false,
			TopicPrefix:   "attendance",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
		},
		Control: ControlConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            4380,
			RateLimitReqs:   30,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Built-in defaults
//  2. YAML config file: configPath if set, else CONFIG_PATH, else DefaultConfigPaths
//  3. Environment variables (highest priority)
//
// An explicit configPath that does not exist is an error; the search
// paths are optional.
func LoadWithKoanf(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		configPath = findConfigFile()
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// POLL_INTERVAL -> poll.interval, DUCKDB_PATH -> database.path, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot
// pollute configuration.
var envMappings = map[string]string{
	"device_timeout":          "device.timeout",
	"device_read_buffer_size": "device.read_buffer_size",
	"device_timezone":         "device.timezone",
	"device_breaker_failures": "device.breaker_failures",
	"device_breaker_timeout":  "device.breaker_timeout",

	"poll_interval":     "poll.interval",
	"poll_device_type":  "poll.device_type",
	"poll_fetch_mode":   "poll.fetch_mode",
	"poll_lookback":     "poll.lookback",
	"poll_overlap":      "poll.overlap",
	"poll_stop_timeout": "poll.stop_timeout",

	"sync_batch_size":          "sync.batch_size",
	"sync_seen_cache_size":     "sync.seen_cache_size",
	"sync_seen_cache_ttl":      "sync.seen_cache_ttl",
	"sync_manual_min_interval": "sync.manual_min_interval",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"checkpoint_enabled": "checkpoint.enabled",
	"checkpoint_path":    "checkpoint.path",

	"nats_enabled":        "events.enabled",
	"nats_url":            "events.url",
	"nats_jetstream":      "events.jetstream",
	"nats_topic_prefix":   "events.topic_prefix",
	"nats_max_reconnects": "events.max_reconnects",

	"control_enabled":     "control.enabled",
	"control_host":        "control.host",
	"control_port":        "control.port",
	"rate_limit_requests": "control.rate_limit_reqs",
	"rate_limit_window":   "control.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
