// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/punchsync/internal/api"
	"github.com/tomtom215/punchsync/internal/cache"
	"github.com/tomtom215/punchsync/internal/checkpoint"
	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/database"
	"github.com/tomtom215/punchsync/internal/events"
	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/registry"
	"github.com/tomtom215/punchsync/internal/supervisor"
	"github.com/tomtom215/punchsync/internal/supervisor/services"
	"github.com/tomtom215/punchsync/internal/sync"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

// components are the poller and the resources it owns.
type components struct {
	db          *database.DB
	checkpoints *checkpoint.Store
	publisher   events.Publisher
	registry    *registry.Registry
	manager     *sync.Manager
}

// buildComponents opens the stores and wires the poller.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.db = db
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	if err := db.SeedFromConfig(ctx, cfg.Devices, cfg.Users, cfg.Poll.DeviceType); err != nil {
		c.close()
		return nil, fmt.Errorf("seed directory: %w", err)
	}

	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.Open(cfg.Checkpoint.Path)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		c.checkpoints = store
	}

	pub, err := events.NewFromConfig(cfg.Events)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("connect event publisher: %w", err)
	}
	c.publisher = pub

	c.registry = registry.New(registry.ZKTecoDialer(zkteco.Options{
		Timeout:        cfg.Device.Timeout,
		ReadBufferSize: cfg.Device.ReadBufferSize,
		Location:       cfg.Device.Location(),
	}))

	var seen *cache.SeenPunches
	if cfg.Sync.SeenCacheSize > 0 {
		seen = cache.NewSeenPunches(cfg.Sync.SeenCacheSize, cfg.Sync.SeenCacheTTL)
	}

	fetcher := sync.NewFetcher(c.registry, cfg.Device.BreakerFailures, cfg.Device.BreakerTimeout)
	engine := sync.NewEngine(db, db, db, cfg.Sync.BatchSize, seen)
	c.manager = sync.NewManager(db, fetcher, engine, c.registry, sync.OptionsFromConfig(cfg))
	c.manager.SetPublisher(pub)
	if c.checkpoints != nil {
		c.manager.SetCheckpointStore(c.checkpoints)
	}
	c.manager.SetOnCycleCompleted(func(summary models.CycleSummary) {
		if _, synced, _ := summary.Totals(); synced == 0 {
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Checkpoint(cctx); err != nil {
			logging.Warn().Err(err).Msg("DuckDB checkpoint after sync failed")
		}
	})

	return c, nil
}

// close releases everything buildComponents opened, in reverse order.
func (c *components) close() {
	if c.registry != nil {
		c.registry.CleanupAll()
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}
	if c.checkpoints != nil {
		if err := c.checkpoints.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing checkpoint store")
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}

// runDaemon runs the supervisor tree until ctx ends or the control API
// asks for shutdown.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("version", version).
		Dur("interval", cfg.Poll.Interval).
		Str("fetch_mode", cfg.Poll.FetchMode).
		Msg("Starting punchsync")

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromConfig(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddPollingService(services.NewPollerService(c.manager))

	if cfg.Control.Enabled {
		handler := api.NewHandler(c.manager, c.db, version)
		handler.SetShutdownFunc(cancel)
		mw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
			RateLimitRequests: cfg.Control.RateLimitReqs,
			RateLimitWindow:   cfg.Control.RateLimitWindow,
		})
		server := api.NewServer(cfg.Control, api.NewRouter(handler, mw).SetupChi())
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Control.ShutdownTimeout))
	} else {
		logging.Info().Msg("Control API disabled")
	}

	errCh := tree.ServeBackground(ctx)
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Punchsync stopped")
	return nil
}
