// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

// Package registry caches one live terminal session per host:port.
//
// A session is created lazily by Get and cached only when the handshake
// succeeds, so an unreachable terminal never leaves a stale entry. There
// is no idle eviction: sessions live until Evict or CleanupAll.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

// Client is the subset of *zkteco.Conn the poller uses.
type Client interface {
	Connect(ctx context.Context) error
	GetDeviceInfo(ctx context.Context) (*models.DeviceInfo, error)
	GetAttendanceLogs(ctx context.Context, start, end *time.Time) ([]models.RawPunch, error)
	GetUsers(ctx context.Context) ([]string, error)
	Disconnect()
	Addr() string
}

// Dialer constructs an unconnected client for host:port.
type Dialer func(host string, port int) Client

// ZKTecoDialer returns a Dialer producing *zkteco.Conn with opts.
func ZKTecoDialer(opts zkteco.Options) Dialer {
	return func(host string, port int) Client {
		return zkteco.NewConn(host, port, opts)
	}
}

// Registry owns every open terminal session.
type Registry struct {
	dial Dialer

	mu      sync.Mutex
	clients map[string]Client
}

// New returns an empty registry.
func New(dial Dialer) *Registry {
	return &Registry{
		dial:    dial,
		clients: make(map[string]Client),
	}
}

// Get returns the cached session for host:port, connecting a new one
// if needed. It returns nil when the terminal cannot be reached; the
// failure is logged and nothing is cached.
//
// The mutex is held across the handshake so two callers never open
// duplicate sessions to one terminal.
func (r *Registry) Get(ctx context.Context, host string, port int) Client {
	key := models.DeviceAddress(host, port)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c
	}

	c := r.dial(host, port)
	if err := c.Connect(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device", key).Msg("Failed to connect to terminal")
		metrics.DeviceConnectFailures.WithLabelValues(key).Inc()
		return nil
	}

	r.clients[key] = c
	metrics.RegistryConnections.Set(float64(len(r.clients)))
	logging.Ctx(ctx).Info().Str("device", key).Msg("Connected to terminal")
	return c
}

// Evict disconnects and forgets the session for host:port so the next
// Get performs a fresh handshake.
func (r *Registry) Evict(host string, port int) {
	key := models.DeviceAddress(host, port)

	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	metrics.RegistryConnections.Set(float64(len(r.clients)))
	r.mu.Unlock()

	if ok {
		c.Disconnect()
		logging.Debug().Str("device", key).Msg("Evicted terminal session")
	}
}

// CleanupAll disconnects every session and empties the registry.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]Client)
	metrics.RegistryConnections.Set(0)
	r.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
	if len(clients) > 0 {
		logging.Info().Int("sessions", len(clients)).Msg("Closed all terminal sessions")
	}
}

// Len returns the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Addresses returns the cached host:port keys in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.clients))
	for k := range r.clients {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
