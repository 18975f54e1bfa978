// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeClock drives TTL expiry without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClockedCache(capacity int, ttl time.Duration) (*LRUCache[string, int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string, int](capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_BasicOperations(t *testing.T) {
	t.Parallel()
	c := NewLRUCache[string, int](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if got, ok := c.Get(key); !ok || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, ok, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	t.Parallel()
	c := NewLRUCache[string, int](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// 'a' becomes most recently used, leaving 'b' oldest.
	c.Get("a")
	c.Add("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %q to be present", key)
		}
	}
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	t.Parallel()
	c, clock := newClockedCache(10, time.Minute)

	c.Add("a", 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' before expiry")
	}

	clock.Advance(time.Minute + time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("Get() found 'a' after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed on Get, Len() = %d", c.Len())
	}
}

func TestLRUCache_AddRefreshesTTL(t *testing.T) {
	t.Parallel()
	c, clock := newClockedCache(10, time.Minute)

	c.Add("a", 1)
	clock.Advance(50 * time.Second)
	c.Add("a", 2)
	clock.Advance(50 * time.Second)

	if got, ok := c.Get("a"); !ok || got != 2 {
		t.Errorf("Get() = %d, %v; want refreshed value 2", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after update, want 1", c.Len())
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	t.Parallel()
	c, clock := newClockedCache(10, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)
	clock.Advance(2 * time.Minute)
	c.Add("d", 4)

	if removed := c.CleanupExpired(); removed != 3 {
		t.Errorf("CleanupExpired() = %d, want 3", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	t.Parallel()
	c := NewLRUCache[int, int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := (id + j) % 80
				c.Add(key, j)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds capacity 50", c.Len())
	}
}

func TestSeenPunches(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s := NewSeenPunches(2, time.Hour)

	k1 := NewPunchKey(1, "77", at)
	if s.Seen(k1) {
		t.Fatal("unmarked punch reported seen")
	}
	s.Mark(k1)
	if !s.Seen(k1) {
		t.Error("marked punch not seen")
	}

	// Same wall-clock instant in another zone is the same punch.
	if !s.Seen(NewPunchKey(1, "77", at.In(time.FixedZone("UTC+3", 3*3600)))) {
		t.Error("zone change altered the key")
	}
	if s.Seen(NewPunchKey(2, "77", at)) {
		t.Error("other device reported seen")
	}

	for i := 0; i < 3; i++ {
		s.Mark(NewPunchKey(1, strconv.Itoa(100+i), at))
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want capacity 2", s.Len())
	}
	if s.Seen(k1) {
		t.Error("oldest punch survived eviction")
	}
	if s.Sweep() != 0 {
		t.Error("Sweep() removed unexpired entries")
	}
}

func TestSeenPunchesDisabled(t *testing.T) {
	t.Parallel()

	s := NewSeenPunches(0, time.Hour)
	if s != nil {
		t.Fatal("zero capacity should disable the cache")
	}
	key := NewPunchKey(1, "77", time.Now())
	s.Mark(key)
	if s.Seen(key) || s.Len() != 0 || s.Sweep() != 0 {
		t.Error("nil SeenPunches must be inert")
	}
}

func BenchmarkLRUCache_Add(b *testing.B) {
	c := NewLRUCache[int, int](10000, time.Minute)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Add(i%20000, i)
	}
}

func BenchmarkSeenPunches(b *testing.B) {
	s := NewSeenPunches(10000, time.Hour)
	at := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := NewPunchKey(1, strconv.Itoa(i%500), at)
		if !s.Seen(key) {
			s.Mark(key)
		}
	}
}
