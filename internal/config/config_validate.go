// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/validation"
)

// Validate runs struct tag validation and the cross-field checks tags
// cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validatePoll(); err != nil {
		return err
	}
	if err := c.validateSeeds(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	if c.Device.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
			return fmt.Errorf("device.timezone %q: %w", c.Device.Timezone, err)
		}
	}
	if c.Device.BreakerFailures > 0 && c.Device.BreakerTimeout <= 0 {
		return fmt.Errorf("device.breaker_timeout must be positive when device.breaker_failures is set")
	}
	return nil
}

func (c *Config) validatePoll() error {
	// A device timeout longer than the interval would let one dead
	// terminal consume a whole cycle.
	if c.Device.Timeout >= c.Poll.Interval {
		return fmt.Errorf("device.timeout (%s) must be shorter than poll.interval (%s)",
			c.Device.Timeout, c.Poll.Interval)
	}
	if c.Poll.FetchMode == "incremental" && c.Poll.Overlap >= c.Poll.Lookback {
		return fmt.Errorf("poll.overlap must be shorter than poll.lookback")
	}
	return nil
}

func (c *Config) validateSeeds() error {
	seen := make(map[string]string, len(c.Devices))
	for _, d := range c.Devices {
		addr := joinHostPort(d.IPAddress, d.Port)
		if prev, ok := seen[addr]; ok {
			return fmt.Errorf("devices %q and %q share address %s", prev, d.Name, addr)
		}
		seen[addr] = d.Name
	}

	ids := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		if prev, ok := ids[u.BiometricID]; ok {
			return fmt.Errorf("users %q and %q share biometric_id %s", prev, u.Username, u.BiometricID)
		}
		ids[u.BiometricID] = u.Username
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	return nil
}

// LoggingSettings converts the loaded section into logging.Config.
func (c *Config) LoggingSettings() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	lc.Caller = c.Logging.Caller
	return lc
}
