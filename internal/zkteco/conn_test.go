// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package zkteco_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/punchsync/internal/testinfra"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

func newConn(term *testinfra.FakeTerminal, timeout time.Duration) *zkteco.Conn {
	return zkteco.NewConn(term.Host(), term.Port(), zkteco.Options{
		Timeout:  timeout,
		Location: time.UTC,
	})
}

func TestConn_ConnectAdoptsSession(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, time.Second)
	defer c.Disconnect()

	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.Connected() {
		t.Fatal("Connected() = false after Connect")
	}
	if c.SessionID() == 0 {
		t.Error("session id not adopted from reply")
	}
	if term.CommandCount(zkteco.CmdConnect) != 1 {
		t.Errorf("CONNECT sent %d times", term.CommandCount(zkteco.CmdConnect))
	}
}

func TestConn_ConnectTimeout(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	term.SetSilent(true)

	c := newConn(term, 150*time.Millisecond)
	start := time.Now()
	err := c.Connect(t.Context())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if c.Connected() {
		t.Error("Conn should be closed after failed handshake")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Connect took %v, timeout not honoured", elapsed)
	}
}

func TestConn_GarbledReply(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, time.Second)
	defer c.Disconnect()

	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	term.SetGarbled(true)
	if _, err := c.SendCommand(t.Context(), zkteco.CmdGetFreeSizes, nil); !errors.Is(err, zkteco.ErrBadMagic) {
		t.Fatalf("SendCommand() err = %v, want ErrBadMagic", err)
	}

	// A garbled reply is per-call; the session keeps working.
	term.SetGarbled(false)
	if _, err := c.GetDeviceInfo(t.Context()); err != nil {
		t.Errorf("GetDeviceInfo() after garbled reply error = %v", err)
	}
}

func TestConn_SendCommandBeforeConnect(t *testing.T) {
	t.Parallel()

	c := zkteco.NewConn("127.0.0.1", 1, zkteco.Options{})
	if _, err := c.SendCommand(t.Context(), zkteco.CmdGetFreeSizes, nil); !errors.Is(err, zkteco.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestConn_GetDeviceInfo(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, time.Second)
	defer c.Disconnect()

	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	info, err := c.GetDeviceInfo(t.Context())
	if err != nil {
		t.Fatalf("GetDeviceInfo() error = %v", err)
	}
	if info.Status != "online" || info.Port != term.Port() || info.Host != term.Host() {
		t.Errorf("info = %+v", info)
	}
}

func TestConn_GetAttendanceLogs(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	term := testinfra.NewFakeTerminal(t)
	term.SetRecords(
		testinfra.Punch("77", now.Add(-2*time.Hour), 0),
		testinfra.Punch("77", now.Add(-1*time.Hour), 1),
		testinfra.Punch("12", now.Add(-10*24*time.Hour), 0), // outside default window
	)

	c := newConn(term, time.Second)
	defer c.Disconnect()
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	records, err := c.GetAttendanceLogs(t.Context(), nil, nil)
	if err != nil {
		t.Fatalf("GetAttendanceLogs() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2 (default 7-day window)", len(records))
	}
	for _, r := range records {
		if r.DeviceAddress != term.Addr() {
			t.Errorf("DeviceAddress = %q, want %q", r.DeviceAddress, term.Addr())
		}
	}
	if records[1].Direction != "out" {
		t.Errorf("second punch direction = %s", records[1].Direction)
	}

	start, end := term.LastRange()
	if window := time.Duration(end-start) * time.Second; window != zkteco.DefaultLogWindow {
		t.Errorf("requested window = %v, want %v", window, zkteco.DefaultLogWindow)
	}
}

func TestConn_GetAttendanceLogsExplicitRange(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	term := testinfra.NewFakeTerminal(t)
	term.SetRecords(
		testinfra.Punch("1", base, 0),
		testinfra.Punch("2", base.Add(48*time.Hour), 0),
	)

	c := newConn(term, time.Second)
	defer c.Disconnect()
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	from, to := base.Add(-time.Hour), base.Add(time.Hour)
	records, err := c.GetAttendanceLogs(t.Context(), &from, &to)
	if err != nil {
		t.Fatalf("GetAttendanceLogs() error = %v", err)
	}
	if len(records) != 1 || records[0].UserID != "1" {
		t.Errorf("records = %+v", records)
	}
}

func TestConn_UnauthorizedAfterReboot(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, time.Second)
	defer c.Disconnect()
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	term.Reboot()
	if _, err := c.GetDeviceInfo(t.Context()); !errors.Is(err, zkteco.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestConn_GetUsers(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	term.SetUsers("77", "1001")

	c := newConn(term, time.Second)
	defer c.Disconnect()
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ids, err := c.GetUsers(t.Context())
	if err != nil {
		t.Fatalf("GetUsers() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "77" || ids[1] != "1001" {
		t.Errorf("ids = %v", ids)
	}
}

func TestConn_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, time.Second)
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.Disconnect()
	c.Disconnect()

	if c.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
}

func TestConn_ContextCancelInterruptsRead(t *testing.T) {
	t.Parallel()

	term := testinfra.NewFakeTerminal(t)
	c := newConn(term, 10*time.Second)
	defer c.Disconnect()
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	term.SetSilent(true)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.GetAttendanceLogs(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancel took %v to take effect", elapsed)
	}
}
