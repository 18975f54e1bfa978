// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

/*
manager.go - Poll Scheduler Lifecycle and Orchestration

Manager owns the poll state (running flag, known devices, per-device
fetch times) and the single loop goroutine that drives poll cycles.

Lifecycle Methods:
  - NewManager(): wire the directory, fetcher, engine and registry
  - Start(): load devices and checkpoints, launch the loop
  - Stop(): signal the loop, wait for it, close every terminal session
  - TriggerSync(): operator-requested cycle (throttled)
  - RunOnce(): one synchronous cycle for the command line
  - Status(): snapshot for the control API

Thread Safety:
  - mu: protects poll state
  - cycleMu: serializes cycles so a manual trigger never overlaps the loop
*/
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/punchsync/internal/checkpoint"
	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/events"
	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/registry"
)

// Fetch window modes.
const (
	FetchModeLookback    = "lookback"
	FetchModeIncremental = "incremental"
)

// Cycle triggers, used as the poll_cycles_total label.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerOnce      = "once"
)

// Options tune the scheduler. Zero values take the defaults noted.
type Options struct {
	Interval          time.Duration // 5m
	DeviceType        string        // zkteco
	FetchMode         string        // lookback
	Lookback          time.Duration // 7 days
	Overlap           time.Duration
	StopTimeout       time.Duration // 5s
	ManualMinInterval time.Duration // 0 disables throttling
}

// OptionsFromConfig maps the poll and sync sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          cfg.Poll.Interval,
		DeviceType:        cfg.Poll.DeviceType,
		FetchMode:         cfg.Poll.FetchMode,
		Lookback:          cfg.Poll.Lookback,
		Overlap:           cfg.Poll.Overlap,
		StopTimeout:       cfg.Poll.StopTimeout,
		ManualMinInterval: cfg.Sync.ManualMinInterval,
	}
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.DeviceType == "" {
		o.DeviceType = "zkteco"
	}
	if o.FetchMode == "" {
		o.FetchMode = FetchModeLookback
	}
	if o.Lookback <= 0 {
		o.Lookback = 7 * 24 * time.Hour
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
}

// Manager is the poll scheduler.
type Manager struct {
	devices  DeviceDirectory
	fetcher  *Fetcher
	engine   *Engine
	registry *registry.Registry
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time

	mu                sync.RWMutex
	running           bool
	knownDevices      []models.Device
	devicesLoaded     bool
	lastFetch         map[string]time.Time // attempt time, drives coalescing
	lastSuccess       map[string]time.Time // start of the next incremental window
	checkpointsLoaded bool
	lastCycle         *models.CycleSummary
	stopChan          chan struct{}
	done              chan struct{}
	cancel            context.CancelFunc
	checkpoints       CheckpointStore
	publisher         events.Publisher
	onCycleCompleted  func(models.CycleSummary)

	cycleMu sync.Mutex
}

// NewManager returns a stopped Manager.
func NewManager(devices DeviceDirectory, fetcher *Fetcher, engine *Engine, reg *registry.Registry, opts Options) *Manager {
	opts.applyDefaults()

	limit := rate.Inf
	if opts.ManualMinInterval > 0 {
		limit = rate.Every(opts.ManualMinInterval)
	}

	logging.Info().
		Dur("interval", opts.Interval).
		Str("device_type", opts.DeviceType).
		Str("fetch_mode", opts.FetchMode).
		Dur("lookback", opts.Lookback).
		Msg("Poll scheduler configured")

	return &Manager{
		devices:     devices,
		fetcher:     fetcher,
		engine:      engine,
		registry:    reg,
		opts:        opts,
		limiter:     rate.NewLimiter(limit, 1),
		now:         time.Now,
		lastFetch:   make(map[string]time.Time),
		lastSuccess: make(map[string]time.Time),
		publisher:   events.NoopPublisher{},
	}
}

// SetCheckpointStore enables persisting fetch times across restarts.
func (m *Manager) SetCheckpointStore(store CheckpointStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = store
}

// SetPublisher sets the event publisher. nil restores the no-op publisher.
func (m *Manager) SetPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = events.NoopPublisher{}
	}
	m.publisher = p
}

// SetOnCycleCompleted sets the callback invoked after every cycle.
func (m *Manager) SetOnCycleCompleted(callback func(models.CycleSummary)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCycleCompleted = callback
}

// Start launches the poll loop. Calling Start on a running Manager logs a
// warning and does nothing. The first cycle begins immediately.
//
// The loop outlives ctx's deadline but not its cancellation: it exits at
// the next checkpoint once ctx is done, marks the Manager stopped and
// closes terminal sessions. Stop then returns ErrNotRunning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if running {
		logging.Warn().Msg("Poller is already running")
		return nil
	}

	m.refreshDevices(ctx)
	m.restoreCheckpoints(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		logging.Warn().Msg("Poller is already running")
		return nil
	}

	// In-flight socket calls are cancelled by Stop, not by the caller.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	m.cancel = cancel

	go m.loop(loopCtx, ctx.Done(), m.stopChan, m.done)

	logging.Info().Int("devices", len(m.knownDevices)).Dur("interval", m.opts.Interval).Msg("Poller started")
	return nil
}

// Stop signals the loop and waits up to the stop timeout for it to
// return. A loop still blocked after that has its context cancelled,
// which aborts the in-flight terminal call. Every cached terminal
// session is closed before Stop returns.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	stop, done, cancel := m.stopChan, m.done, m.cancel
	m.mu.Unlock()

	logging.Info().Msg("Stopping poller...")
	close(stop)

	timer := time.NewTimer(m.opts.StopTimeout)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		logging.Warn().Dur("timeout", m.opts.StopTimeout).Msg("Poll loop did not stop in time, cancelling in-flight work")
		cancel()
		grace := time.NewTimer(m.opts.StopTimeout)
		select {
		case <-done:
			grace.Stop()
		case <-grace.C:
			logging.Error().Msg("Poll loop still running after cancellation")
		}
	}
	cancel()

	m.registry.CleanupAll()
	metrics.RegistryConnections.Set(0)
	logging.Info().Msg("Poller stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Status returns a snapshot of the poll state, loading the device list
// if no cycle has run yet.
func (m *Manager) Status(ctx context.Context) models.PollerStatus {
	m.mu.RLock()
	loaded := m.devicesLoaded
	m.mu.RUnlock()
	if !loaded {
		m.refreshDevices(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	times := make(map[string]time.Time, len(m.lastFetch))
	for name, t := range m.lastFetch {
		times[name] = t
	}
	return models.PollerStatus{
		Running:        m.running,
		DeviceCount:    len(m.knownDevices),
		LastFetchTimes: times,
		IntervalSecs:   m.opts.Interval.Seconds(),
		Connections:    m.registry.Addresses(),
	}
}

// LastCycle returns the most recent cycle summary, or nil.
func (m *Manager) LastCycle() *models.CycleSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastCycle == nil {
		return nil
	}
	c := *m.lastCycle
	c.Devices = append([]models.DeviceSyncSummary(nil), m.lastCycle.Devices...)
	return &c
}

// TriggerSync runs a cycle now, for one device (req.Device) or all of
// them, ignoring the coalescing window. It waits for any cycle already
// in progress. Requests closer together than the manual minimum
// interval fail with ErrSyncThrottled.
func (m *Manager) TriggerSync(ctx context.Context, req models.SyncTriggerRequest) (*models.CycleSummary, error) {
	devices := m.refreshDevices(ctx)
	if req.Device != "" {
		devices = filterDevices(devices, req.Device)
		if len(devices) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, req.Device)
		}
	}

	if !m.limiter.Allow() {
		return nil, ErrSyncThrottled
	}

	summary := m.runCycle(ctx, TriggerManual, devices, req.Start, req.End)
	return &summary, nil
}

// RunOnce runs one synchronous cycle over every device. It refuses to
// run beside the loop.
func (m *Manager) RunOnce(ctx context.Context) (*models.CycleSummary, error) {
	if m.IsRunning() {
		return nil, ErrAlreadyRunning
	}
	m.restoreCheckpoints(ctx)
	summary := m.runCycle(ctx, TriggerOnce, m.refreshDevices(ctx), nil, nil)
	return &summary, nil
}

func filterDevices(devices []models.Device, name string) []models.Device {
	for _, d := range devices {
		if d.Name == name {
			return []models.Device{d}
		}
	}
	return nil
}

func (m *Manager) loop(ctx context.Context, parentDone <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-parentDone:
			m.stopAfterParentCancel(done)
			return
		default:
		}

		m.runCycle(ctx, TriggerScheduled, m.refreshDevices(ctx), nil, nil)

		timer := time.NewTimer(m.opts.Interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-parentDone:
			timer.Stop()
			m.stopAfterParentCancel(done)
			return
		case <-timer.C:
		}
	}
}

// stopAfterParentCancel marks the Manager stopped when the loop that owns
// done exits on parent cancellation. A concurrent Stop that already
// claimed the shutdown is left to finish it.
func (m *Manager) stopAfterParentCancel(done chan<- struct{}) {
	m.mu.Lock()
	if !m.running || m.done != done {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	logging.Info().Msg("Poll loop context cancelled")
	cancel()
	m.registry.CleanupAll()
	metrics.RegistryConnections.Set(0)
	logging.Info().Msg("Poller stopped")
}

// refreshDevices reloads the active device list. On failure the previous
// list is kept and returned.
func (m *Manager) refreshDevices(ctx context.Context) []models.Device {
	devices, err := m.devices.ListActiveDevices(ctx, m.opts.DeviceType)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to load devices, keeping previous list")
	} else {
		m.knownDevices = devices
		m.devicesLoaded = true
	}
	return append([]models.Device(nil), m.knownDevices...)
}

// restoreCheckpoints seeds fetch times from the checkpoint store once.
func (m *Manager) restoreCheckpoints(ctx context.Context) {
	m.mu.Lock()
	store := m.checkpoints
	if store == nil || m.checkpointsLoaded {
		m.mu.Unlock()
		return
	}
	m.checkpointsLoaded = true
	m.mu.Unlock()

	times, err := store.LoadAll(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to restore poll checkpoints")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, t := range times {
		m.lastFetch[name] = t
		m.lastSuccess[name] = t
	}
	logging.Info().Int("devices", len(times)).Msg("Restored poll checkpoints")
}

func (m *Manager) stopSignal() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return nil
	}
	return m.stopChan
}

// fetchedRecently reports whether device was attempted within the last
// interval.
func (m *Manager) fetchedRecently(device string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.lastFetch[device]
	return ok && now.Sub(last) < m.opts.Interval
}

// window returns the fetch range for device.
func (m *Manager) window(device string, now time.Time) (start, end *time.Time) {
	from := now.Add(-m.opts.Lookback)
	if m.opts.FetchMode == FetchModeIncremental {
		m.mu.RLock()
		last, ok := m.lastSuccess[device]
		m.mu.RUnlock()
		if ok {
			from = last.Add(-m.opts.Overlap)
		}
	}
	to := now
	return &from, &to
}

// manualWindow completes an operator-supplied range.
func (m *Manager) manualWindow(start, end *time.Time, now time.Time) (*time.Time, *time.Time) {
	if end == nil {
		to := now
		end = &to
	}
	if start == nil {
		from := end.Add(-m.opts.Lookback)
		start = &from
	}
	return start, end
}

// runCycle syncs devices in order. Scheduled cycles skip devices fetched
// within the interval; stop and cancellation are honoured between devices.
func (m *Manager) runCycle(ctx context.Context, trigger string, devices []models.Device, start, end *time.Time) models.CycleSummary {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	began := m.now()
	summary := models.CycleSummary{
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		Trigger:       trigger,
		StartedAt:     began,
		Devices:       []models.DeviceSyncSummary{},
	}

	if recycler, ok := m.engine.store.(PoolRecycler); ok {
		recycler.RecycleConnections()
	}

	stop := m.stopSignal()
	for _, device := range devices {
		if stopped(stop) || ctx.Err() != nil {
			log.Info().Str("trigger", trigger).Msg("Poll cycle interrupted")
			break
		}

		now := m.now()
		if trigger == TriggerScheduled && m.fetchedRecently(device.Name, now) {
			log.Debug().Str("device", device.Name).Msg("Device fetched recently, skipping")
			continue
		}

		from, to := start, end
		if trigger == TriggerManual && (from != nil || to != nil) {
			from, to = m.manualWindow(from, to, now)
		} else {
			from, to = m.window(device.Name, now)
		}
		summary.Devices = append(summary.Devices, m.syncDevice(ctx, device, from, to, now))
	}

	m.engine.seen.Sweep()
	summary.Duration = m.now().Sub(began)
	metrics.RecordPollCycle(trigger, summary.Duration)
	metrics.RegistryConnections.Set(float64(m.registry.Len()))

	fetched, synced, errs := summary.Totals()
	log.Info().
		Str("trigger", trigger).
		Int("devices", len(summary.Devices)).
		Int("fetched", fetched).
		Int("synced", synced).
		Int("errors", errs).
		Dur("duration", summary.Duration).
		Msg("Poll cycle completed")

	m.mu.Lock()
	stored := summary
	m.lastCycle = &stored
	callback := m.onCycleCompleted
	m.mu.Unlock()

	if callback != nil {
		callback(summary)
	}
	return summary
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// syncDevice fetches and stores one device's punches. Panics are
// recovered into the summary.
func (m *Manager) syncDevice(ctx context.Context, device models.Device, start, end *time.Time, now time.Time) (s models.DeviceSyncSummary) {
	s = models.DeviceSyncSummary{Device: device.Name, Address: device.Address()}
	log := logging.Ctx(ctx).With().Str("device", device.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while syncing device")
			s.Errors = s.Fetched
			s.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	res := m.fetcher.FetchDevice(ctx, device, start, end)
	s.Online = res.Online
	s.Skipped = res.Skipped
	s.Fetched = res.Count

	if res.Skipped {
		s.Error = res.Err.Error()
		return s
	}
	m.mu.Lock()
	m.lastFetch[device.Name] = now
	m.mu.Unlock()

	if res.Err != nil {
		s.Error = res.Err.Error()
		if !res.Online {
			m.publishOffline(ctx, device, res.Err)
		}
		return s
	}

	result := m.engine.SyncAttendance(ctx, device.IPAddress, device.Port, res.Records)
	s.Synced = result.Synced
	s.Duplicates = result.Duplicates
	s.Unmatched = result.Unmatched
	s.Errors = result.Errors
	s.NotRegistered = result.NotRegistered

	// A window with failed writes is fetched again next cycle.
	if result.Errors == 0 {
		m.mu.Lock()
		m.lastSuccess[device.Name] = now
		m.mu.Unlock()
		m.saveCheckpoint(ctx, device, now, res.Count)
	}

	if res.Count > 0 && !result.NotRegistered {
		if err := m.devices.UpdateLastSync(ctx, device.ID, now); err != nil {
			log.Warn().Err(err).Msg("Failed to record last sync time")
		}
	}

	if result.Synced > 0 {
		ev := events.NewPunchesSynced(device.Name, device.Address(), result.DeviceID, result.Stored)
		ev.CorrelationID = logging.CorrelationIDFromContext(ctx)
		ev.Duplicates = result.Duplicates
		ev.Unmatched = result.Unmatched
		ev.Errors = result.Errors
		if err := m.getPublisher().PublishPunchesSynced(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish punches synced event")
		}
	}
	return s
}

func (m *Manager) publishOffline(ctx context.Context, device models.Device, cause error) {
	ev := events.NewDeviceOffline(device.Name, device.Address(), cause)
	ev.CorrelationID = logging.CorrelationIDFromContext(ctx)
	if err := m.getPublisher().PublishDeviceOffline(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device", device.Name).Msg("Failed to publish device offline event")
	}
}

func (m *Manager) saveCheckpoint(ctx context.Context, device models.Device, at time.Time, records int) {
	m.mu.RLock()
	store := m.checkpoints
	m.mu.RUnlock()
	if store == nil {
		return
	}
	entry := checkpoint.Entry{Device: device.Name, Address: device.Address(), LastFetch: at, Records: records}
	if err := store.Save(ctx, entry); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device", device.Name).Msg("Failed to save poll checkpoint")
	}
}

func (m *Manager) getPublisher() events.Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publisher
}
