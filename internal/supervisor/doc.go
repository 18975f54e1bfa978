// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package supervisor runs the daemon's long-running services under a suture v4
supervisor tree.

# Overview

	RootSupervisor ("punchsync")
	├── PollingSupervisor ("polling-layer")
	│   └── PollerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed service is restarted with suture's failure counting and backoff.
Each layer counts failures on its own, so a control server that keeps
failing to bind does not stall the poll loop.

# Configuration

TreeConfig controls restart behavior. Zero fields take suture's defaults:

	FailureThreshold: 5
	FailureDecay:     30 (seconds)
	FailureBackoff:   15s
	ShutdownTimeout:  10s

TreeConfigFromConfig maps the "supervisor" section of the daemon config.

# Logging

Supervisor events go through sutureslog into the slog bridge of the
logging package, so service restarts land in the same zerolog stream as
everything else.

# What Is NOT Supervised

DuckDB and the Badger checkpoint store are embedded libraries opened and
closed by main. Terminal sessions are owned by the poller and closed when
it stops.
*/
package supervisor
