// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/sync"
	"github.com/tomtom215/punchsync/internal/validation"
)

// maxRequestBody bounds POST bodies; trigger requests are tiny.
const maxRequestBody = 64 << 10

// Poller is the scheduler surface the control API drives.
type Poller interface {
	Status(ctx context.Context) models.PollerStatus
	TriggerSync(ctx context.Context, req models.SyncTriggerRequest) (*models.CycleSummary, error)
	Stop() error
	IsRunning() bool
	LastCycle() *models.CycleSummary
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Poller        models.PollerStatus  `json:"poller"`
	LastCycle     *models.CycleSummary `json:"last_cycle,omitempty"`
	UptimeSeconds float64              `json:"uptime_seconds"`
	Version       string               `json:"version"`
}

// StopResponse is the payload of POST /api/v1/stop.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// Handler serves the control endpoints.
type Handler struct {
	poller    Poller
	db        Pinger
	version   string
	startTime time.Time

	// shutdown ends the whole process; when nil, stop only halts the poller.
	shutdown func()
}

// NewHandler returns a Handler. db may be nil.
func NewHandler(poller Poller, db Pinger, version string) *Handler {
	return &Handler{
		poller:    poller,
		db:        db,
		version:   version,
		startTime: time.Now(),
	}
}

// SetShutdownFunc makes POST /stop terminate the process through fn.
func (h *Handler) SetShutdownFunc(fn func()) {
	h.shutdown = fn
}

// HealthLive reports that the process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady reports whether the store answers and the poller runs.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check: database ping failed")
			rw.ServiceUnavailable("Database unavailable")
			return
		}
	}
	if !h.poller.IsRunning() {
		rw.ServiceUnavailable("Poller not running")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// Status returns the poller state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(StatusResponse{
		Poller:        h.poller.Status(r.Context()),
		LastCycle:     h.poller.LastCycle(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Version:       h.version,
	})
}

// TriggerSync runs a manual cycle. The body is optional.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.SyncTriggerRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		rw.BadRequest("Request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			rw.BadRequest("Invalid JSON body")
			return
		}
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("Invalid sync request", verr.Fields())
		return
	}

	summary, err := h.poller.TriggerSync(r.Context(), req)
	switch {
	case errors.Is(err, sync.ErrUnknownDevice):
		rw.NotFound("Unknown device: " + req.Device)
	case errors.Is(err, sync.ErrSyncThrottled):
		rw.TooManyRequests("Manual sync requested too soon")
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Manual sync failed")
		rw.InternalError("Sync failed")
	default:
		rw.Success(summary)
	}
}

// Stop shuts the daemon down, or only the poller when no shutdown hook
// is installed.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.shutdown != nil {
		logging.Ctx(r.Context()).Info().Msg("Shutdown requested over control API")
		rw.Accepted(StopResponse{Stopping: true})
		// Let the response flush before the server starts draining.
		go h.shutdown()
		return
	}

	if err := h.poller.Stop(); err != nil {
		if errors.Is(err, sync.ErrNotRunning) {
			rw.Conflict("Poller is not running")
			return
		}
		rw.InternalError("Failed to stop poller")
		return
	}
	rw.Success(StopResponse{Stopping: true})
}
