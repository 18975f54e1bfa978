// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package services

import (
	"context"
	"errors"
	"fmt"

	poll "github.com/tomtom215/punchsync/internal/sync"
)

// StartStopPoller matches the lifecycle of *sync.Manager.
type StartStopPoller interface {
	Start(ctx context.Context) error
	Stop() error
}

// PollerService adapts the poll scheduler's Start/Stop lifecycle to
// suture's Serve. Start spawns the loop and returns; Serve then blocks
// until ctx ends and stops the loop, which closes every terminal session.
type PollerService struct {
	poller StartStopPoller
	name   string
}

// NewPollerService wraps poller.
func NewPollerService(poller StartStopPoller) *PollerService {
	return &PollerService{
		poller: poller,
		name:   "poller",
	}
}

// Serve implements suture.Service.
func (s *PollerService) Serve(ctx context.Context) error {
	if err := s.poller.Start(ctx); err != nil {
		return fmt.Errorf("poller start failed: %w", err)
	}

	<-ctx.Done()

	// The poller may already have been stopped over the control API.
	if err := s.poller.Stop(); err != nil && !errors.Is(err, poll.ErrNotRunning) {
		return fmt.Errorf("poller stop failed: %w", err)
	}
	return ctx.Err()
}

// String names the service in supervisor events.
func (s *PollerService) String() string {
	return s.name
}
