// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Punchsync polls ZKTeco biometric attendance terminals over UDP and writes
their punches into a DuckDB attendance store.

# Usage

	punchsync [flags]

With no action flag the daemon runs in the foreground until SIGINT or
SIGTERM. Flags:

	-config path       YAML config file (default: CONFIG_PATH, ./config.yaml,
	                   /etc/punchsync/config.yaml)
	-interval seconds  override poll.interval
	-daemon            run as a service: JSON logs, no console formatting
	-once              run one sync cycle over all active devices and exit
	-status            print the state of a running daemon
	-stop              ask a running daemon to shut down
	-probe host:port   connect to one terminal, report reachability and
	                   the number of stored punches, then exit
	-control url       control API of the running daemon
	                   (default: http://<control.host>:<control.port>)

# Architecture

	RootSupervisor ("punchsync")
	├── PollingSupervisor ("polling-layer")
	│   └── PollerService (sync.Manager)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (control API, loopback only by default)

Initialization order:

 1. Configuration: koanf layered defaults, YAML and environment
 2. Logging: zerolog
 3. Database: DuckDB, seeded from the devices and users config sections
 4. Checkpoints: BadgerDB per-device last fetch times (optional)
 5. Events: NATS publisher for synced punches (optional)
 6. Poller: registry, fetcher, sync engine and manager
 7. Supervisor tree with the poller and the control API

# Exit Codes

	0  clean shutdown, or the requested one-shot action succeeded
	1  configuration, startup or one-shot action failure
*/
package main
