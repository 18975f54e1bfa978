// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package cache

import (
	"time"

	"github.com/tomtom215/punchsync/internal/metrics"
)

// PunchKey is the attendance uniqueness triple.
type PunchKey struct {
	DeviceID    int64
	BiometricID string
	Unix        int64
}

// NewPunchKey builds the key for a punch at t.
func NewPunchKey(deviceID int64, biometricID string, t time.Time) PunchKey {
	return PunchKey{DeviceID: deviceID, BiometricID: biometricID, Unix: t.Unix()}
}

// SeenPunches remembers punches this process has already persisted.
// A miss proves nothing; callers must fall back to the store.
// A nil *SeenPunches is valid and never reports a hit.
type SeenPunches struct {
	lru *LRUCache[PunchKey, struct{}]
}

// NewSeenPunches returns nil when capacity is zero, disabling the cache.
func NewSeenPunches(capacity int, ttl time.Duration) *SeenPunches {
	if capacity <= 0 {
		return nil
	}
	return &SeenPunches{lru: NewLRUCache[PunchKey, struct{}](capacity, ttl)}
}

// Seen reports whether key was marked and has not expired.
func (s *SeenPunches) Seen(key PunchKey) bool {
	if s == nil {
		return false
	}
	_, ok := s.lru.Get(key)
	if ok {
		metrics.SeenCacheHits.Inc()
	}
	return ok
}

// Mark records key as persisted.
func (s *SeenPunches) Mark(key PunchKey) {
	if s == nil {
		return
	}
	s.lru.Add(key, struct{}{})
}

// Len returns the number of remembered punches.
func (s *SeenPunches) Len() int {
	if s == nil {
		return 0
	}
	return s.lru.Len()
}

// Sweep drops expired entries.
func (s *SeenPunches) Sweep() int {
	if s == nil {
		return 0
	}
	return s.lru.CleanupExpired()
}
