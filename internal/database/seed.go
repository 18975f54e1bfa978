// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/models"
)

// SeedFromConfig registers the devices and users declared in
// configuration. Entries that already exist are left untouched, so the
// directory stays authoritative once an operator edits it.
func (db *DB) SeedFromConfig(ctx context.Context, devices []config.DeviceSeed, users []config.UserSeed, defaultType string) error {
	var addedDevices, addedUsers int

	for _, seed := range devices {
		deviceType := seed.DeviceType
		if deviceType == "" {
			deviceType = defaultType
		}
		err := db.CreateDevice(ctx, &models.Device{
			Name:       seed.Name,
			IPAddress:  seed.IPAddress,
			Port:       seed.Port,
			DeviceType: deviceType,
			Active:     true,
			Office:     seed.Office,
		})
		if errors.Is(err, ErrDeviceExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed device %s: %w", seed.Name, err)
		}
		addedDevices++
	}

	for _, seed := range users {
		err := db.CreateUser(ctx, &models.SystemUser{
			Username:    seed.Username,
			FullName:    seed.FullName,
			BiometricID: seed.BiometricID,
			Active:      true,
		})
		if errors.Is(err, ErrUsernameExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", seed.Username, err)
		}
		addedUsers++
	}

	if addedDevices > 0 || addedUsers > 0 {
		logging.Info().
			Int("devices", addedDevices).
			Int("users", addedUsers).
			Msg("Seeded directory from configuration")
	}
	return nil
}
