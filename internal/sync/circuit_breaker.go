// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
	"github.com/tomtom215/punchsync/internal/models"
)

// deviceBreakers holds one circuit breaker per device name. A device
// trips after `failures` consecutive failed fetches and is skipped for
// `timeout`, after which a single half-open fetch decides whether it
// closes again.
//
// A nil *deviceBreakers runs every fetch unguarded.
type deviceBreakers struct {
	failures uint32
	timeout  time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]models.RawPunch]
}

func newDeviceBreakers(failures uint32, timeout time.Duration) *deviceBreakers {
	if failures == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &deviceBreakers{
		failures: failures,
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]models.RawPunch]),
	}
}

func breakerName(device string) string {
	return "device:" + device
}

func (b *deviceBreakers) get(device string) *gobreaker.CircuitBreaker[[]models.RawPunch] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[device]; ok {
		return cb
	}

	name := breakerName(device)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	threshold := b.failures
	cb := gobreaker.NewCircuitBreaker[[]models.RawPunch](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0, // counts persist until a state change
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Shutting down is not the device's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
	b.breakers[device] = cb
	return cb
}

// execute runs fn under device's breaker. A rejected call returns
// ErrBreakerOpen without invoking fn.
func (b *deviceBreakers) execute(device string, fn func() ([]models.RawPunch, error)) ([]models.RawPunch, error) {
	if b == nil {
		return fn()
	}

	name := breakerName(device)
	records, err := b.get(device).Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		return nil, ErrBreakerOpen
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		return records, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		return records, nil
	}
}

// state reports a device breaker's state name; "closed" when unguarded.
func (b *deviceBreakers) state(device string) string {
	if b == nil {
		return stateToString(gobreaker.StateClosed)
	}
	b.mu.Lock()
	cb, ok := b.breakers[device]
	b.mu.Unlock()
	if !ok {
		return stateToString(gobreaker.StateClosed)
	}
	return stateToString(cb.State())
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
