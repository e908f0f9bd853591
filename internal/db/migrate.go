/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/dawnchorus/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Library
		&models.AudioFile{},
		&models.Playlist{},
		&models.PlaylistItem{},

		// Scheduling
		&models.ScheduledTask{},
		&models.ExecutionHistory{},

		// Listening log
		&models.PlaybackHistory{},
	); err != nil {
		return err
	}

	if err := backfillPlayMode(database); err != nil {
		return err
	}
	return nil
}

// backfillPlayMode fills play_mode on playlists created before the column had a default.
func backfillPlayMode(database *gorm.DB) error {
	res := database.Model(&models.Playlist{}).
		Where("play_mode IS NULL OR play_mode = ''").
		Update("play_mode", models.PlayModeSequential)
	if res.Error != nil {
		return fmt.Errorf("backfill playlist play mode: %w", res.Error)
	}
	return nil
}
