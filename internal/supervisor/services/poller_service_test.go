// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	poll "github.com/tomtom215/punchsync/internal/sync"
)

type mockPoller struct {
	started    atomic.Int32
	stopped    atomic.Int32
	startError error
	stopError  error
}

func (m *mockPoller) Start(context.Context) error {
	if m.startError != nil {
		return m.startError
	}
	m.started.Add(1)
	return nil
}

func (m *mockPoller) Stop() error {
	m.stopped.Add(1)
	return m.stopError
}

func TestPollerService_Interface(t *testing.T) {
	var _ suture.Service = (*PollerService)(nil)
	var _ StartStopPoller = (*poll.Manager)(nil)
}

func TestPollerService(t *testing.T) {
	t.Parallel()

	t.Run("starts and stops the poller", func(t *testing.T) {
		t.Parallel()
		p := &mockPoller{}
		svc := NewPollerService(p)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		deadline := time.Now().Add(time.Second)
		for p.started.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if p.started.Load() != 1 {
			t.Fatal("poller was not started")
		}
		if p.stopped.Load() != 0 {
			t.Fatal("poller stopped before cancellation")
		}

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
		if p.stopped.Load() != 1 {
			t.Errorf("Stop called %d times, want 1", p.stopped.Load())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		t.Parallel()
		startErr := errors.New("no devices table")
		svc := NewPollerService(&mockPoller{startError: startErr})
		if err := svc.Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("Serve() = %v, want %v", err, startErr)
		}
	})

	t.Run("already stopped poller is not an error", func(t *testing.T) {
		t.Parallel()
		svc := NewPollerService(&mockPoller{stopError: poll.ErrNotRunning})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	})

	t.Run("stop failure is returned", func(t *testing.T) {
		t.Parallel()
		stopErr := errors.New("stuck")
		svc := NewPollerService(&mockPoller{stopError: stopErr})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := svc.Serve(ctx); !errors.Is(err, stopErr) {
			t.Errorf("Serve() = %v, want %v", err, stopErr)
		}
	})

	if got := NewPollerService(&mockPoller{}).String(); got != "poller" {
		t.Errorf("String() = %q", got)
	}
}
