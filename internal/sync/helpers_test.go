// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/punchsync/internal/database"
	"github.com/tomtom215/punchsync/internal/events"
	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/registry"
	"github.com/tomtom215/punchsync/internal/testinfra"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

type punchKey struct {
	deviceID    int64
	biometricID string
	unix        int64
}

// memDirectory implements the device and user directories and the
// attendance store in memory.
type memDirectory struct {
	mu sync.Mutex

	devices []models.Device
	users   map[string]*models.SystemUser
	logs    map[punchKey]models.AttendanceLog
	nextID  int64

	listErr     error
	userErr     error
	existsErr   error
	userLookups map[string]int
	existsCalls int
	lastSync    map[int64]time.Time
	released    int
	recycled    int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		users:       make(map[string]*models.SystemUser),
		logs:        make(map[punchKey]models.AttendanceLog),
		userLookups: make(map[string]int),
		lastSync:    make(map[int64]time.Time),
	}
}

func (d *memDirectory) addDevice(name, host string, port int) models.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev := models.Device{
		ID:         int64(len(d.devices) + 1),
		Name:       name,
		IPAddress:  host,
		Port:       port,
		DeviceType: "zkteco",
		Active:     true,
	}
	d.devices = append(d.devices, dev)
	return dev
}

func (d *memDirectory) addUser(username, biometricID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[biometricID] = &models.SystemUser{
		ID:          int64(len(d.users) + 100),
		Username:    username,
		BiometricID: biometricID,
		Active:      true,
	}
}

func (d *memDirectory) ListActiveDevices(_ context.Context, deviceType string) ([]models.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	var out []models.Device
	for _, dev := range d.devices {
		if dev.Active && dev.DeviceType == deviceType {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (d *memDirectory) GetDeviceByAddress(_ context.Context, host string, port int) (*models.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.IPAddress == host && dev.Port == port {
			dev := dev
			return &dev, nil
		}
	}
	return nil, database.ErrDeviceNotFound
}

func (d *memDirectory) UpdateLastSync(_ context.Context, deviceID int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSync[deviceID] = at
	return nil
}

func (d *memDirectory) GetUserByBiometricID(_ context.Context, biometricID string) (*models.SystemUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userLookups[biometricID]++
	if d.userErr != nil {
		return nil, d.userErr
	}
	u, ok := d.users[biometricID]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}

func (d *memDirectory) AttendanceExists(_ context.Context, deviceID int64, biometricID string, punchTime time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.existsCalls++
	if d.existsErr != nil {
		return false, d.existsErr
	}
	_, ok := d.logs[punchKey{deviceID, biometricID, punchTime.Unix()}]
	return ok, nil
}

func (d *memDirectory) CreateAttendanceLog(_ context.Context, entry *models.AttendanceLog) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := punchKey{entry.DeviceID, entry.BiometricID, entry.PunchTime.Unix()}
	if _, ok := d.logs[key]; ok {
		return false, nil
	}
	d.nextID++
	entry.ID = d.nextID
	d.logs[key] = *entry
	return true, nil
}

func (d *memDirectory) ReleaseBatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
}

func (d *memDirectory) RecycleConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recycled++
}

func (d *memDirectory) logCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.logs)
}

func (d *memDirectory) lastSyncOf(deviceID int64) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.lastSync[deviceID]
	return t, ok
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu      sync.Mutex
	synced  []*events.PunchesSynced
	offline []*events.DeviceOffline
}

func (p *recordingPublisher) PublishPunchesSynced(_ context.Context, ev *events.PunchesSynced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synced = append(p.synced, ev)
	return nil
}

func (p *recordingPublisher) PublishDeviceOffline(_ context.Context, ev *events.DeviceOffline) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) counts() (synced, offline int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.synced), len(p.offline)
}

func newTestRegistry(timeout time.Duration) *registry.Registry {
	return registry.New(registry.ZKTecoDialer(zkteco.Options{Timeout: timeout, Location: time.UTC}))
}

// recentPunch returns a punch inside the default lookback window,
// truncated to whole seconds.
func recentPunch(userID string, ago time.Duration, status uint8) models.RawPunch {
	return testinfra.Punch(userID, time.Now().Add(-ago).Truncate(time.Second), status)
}

type testRig struct {
	dir       *memDirectory
	reg       *registry.Registry
	fetcher   *Fetcher
	engine    *Engine
	manager   *Manager
	publisher *recordingPublisher
}

func newTestRig(t *testing.T, timeout time.Duration, opts Options) *testRig {
	t.Helper()

	dir := newMemDirectory()
	reg := newTestRegistry(timeout)
	t.Cleanup(reg.CleanupAll)

	fetcher := NewFetcher(reg, 0, 0)
	engine := NewEngine(dir, dir, dir, 10, nil)
	m := NewManager(dir, fetcher, engine, reg, opts)
	pub := &recordingPublisher{}
	m.SetPublisher(pub)

	return &testRig{dir: dir, reg: reg, fetcher: fetcher, engine: engine, manager: m, publisher: pub}
}

func findDevice(t *testing.T, summary *models.CycleSummary, name string) models.DeviceSyncSummary {
	t.Helper()
	for _, d := range summary.Devices {
		if d.Device == name {
			return d
		}
	}
	t.Fatalf("device %q missing from cycle summary %+v", name, summary.Devices)
	return models.DeviceSyncSummary{}
}
