// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
Package sync polls biometric terminals and writes their punches to the
attendance store.

Key Components:

  - Fetcher: fans out over devices one at a time, isolating each
    device's failure; wraps every device in its own circuit breaker
  - Engine: resolves device and user identities and inserts punches
    idempotently, in batches
  - Manager: the poll scheduler (Stopped/Running), manual triggers and
    status reporting

Data Flow:

	Manager -> Fetcher -> registry.Registry -> zkteco.Conn (UDP)
	        -> Engine  -> DeviceDirectory / UserDirectory / AttendanceStore

Deduplication:

Terminals are polled over overlapping windows, so the same punch is
downloaded many times. The (device, biometric id, punch time) triple is
checked before every insert; a bounded in-process cache skips punches
this process already wrote, and the insert itself ignores conflicts so
a concurrent writer degrades to a skip.

Cancellation:

Stop closes a channel checked between devices and between cycles. If
the loop has not returned within the stop timeout its context is
cancelled, which interrupts the in-flight socket read, and all cached
terminal sessions are closed.

Usage Example:

	db, _ := database.New(&cfg.Database)
	reg := registry.New(registry.ZKTecoDialer(zkteco.Options{Timeout: cfg.Device.Timeout}))
	fetcher := sync.NewFetcher(reg, cfg.Device.BreakerFailures, cfg.Device.BreakerTimeout)
	engine := sync.NewEngine(db, db, db, cfg.Sync.BatchSize, seen)
	mgr := sync.NewManager(db, fetcher, engine, reg, sync.OptionsFromConfig(cfg))
	_ = mgr.Start(ctx)
	defer mgr.Stop()
*/
package sync
