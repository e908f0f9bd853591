/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"gorm.io/gorm"
)

// ListTasks returns every task joined with its playlist name, ordered by time of day.
func (s *Store) ListTasks(ctx context.Context) ([]models.TaskListing, error) {
	var rows []models.TaskListing
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Table("scheduled_tasks").
			Select("scheduled_tasks.*, COALESCE(playlists.name, '') AS playlist_name").
			Joins("LEFT JOIN playlists ON playlists.id = scheduled_tasks.playlist_id").
			Order("scheduled_tasks.hour ASC, scheduled_tasks.minute ASC, scheduled_tasks.id ASC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, apperr.Store("list tasks", err)
	}
	return rows, nil
}

// EnabledTasks returns enabled tasks in firing order: priority descending,
// then hour and minute ascending.
func (s *Store) EnabledTasks(ctx context.Context) ([]models.ScheduledTask, error) {
	var tasks []models.ScheduledTask
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Where("is_enabled = ?", true).
			Order("priority DESC, hour ASC, minute ASC, id ASC").
			Find(&tasks).Error
	})
	if err != nil {
		return nil, apperr.Store("enabled tasks", err)
	}
	return tasks, nil
}

// GetTask loads a task by ID.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	var task models.ScheduledTask
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.First(&task, id).Error
	})
	if err != nil {
		return nil, notFoundOr("get task", "task", id, err)
	}
	return &task, nil
}

// TasksUsingPlaylist returns the enabled tasks that would play the playlist.
func (s *Store) TasksUsingPlaylist(ctx context.Context, playlistID int64) ([]models.ScheduledTask, error) {
	var tasks []models.ScheduledTask
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Where("playlist_id = ? AND is_enabled = ?", playlistID, true).Order("hour ASC, minute ASC, id ASC").Find(&tasks).Error
	})
	if err != nil {
		return nil, apperr.Store("tasks using playlist", err)
	}
	return tasks, nil
}

// CreateTask inserts a validated task. The referenced playlist must exist.
func (s *Store) CreateTask(ctx context.Context, task *models.ScheduledTask) error {
	task.ID = 0
	return s.inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Playlist{}, task.PlaylistID).Error; err != nil {
			return notFoundOr("create task", "playlist", task.PlaylistID, err)
		}
		return apperr.Store("create task", tx.Omit("Playlist").Create(task).Error)
	})
}

// UpdateTask replaces every editable field of an existing task.
func (s *Store) UpdateTask(ctx context.Context, task *models.ScheduledTask) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		var existing models.ScheduledTask
		if err := tx.First(&existing, task.ID).Error; err != nil {
			return notFoundOr("update task", "task", task.ID, err)
		}
		if err := tx.Select("id").First(&models.Playlist{}, task.PlaylistID).Error; err != nil {
			return notFoundOr("update task", "playlist", task.PlaylistID, err)
		}
		task.CreatedAt = existing.CreatedAt
		err := tx.Model(&existing).
			Select("name", "hour", "minute", "repeat_mode", "custom_days", "playlist_id",
				"volume", "fade_in_duration", "duration_minutes", "is_enabled", "priority", "updated_at").
			Updates(task).Error
		if err != nil {
			return apperr.Store("update task", err)
		}
		return apperr.Store("update task", tx.First(task, task.ID).Error)
	})
}

// DeleteTask removes a task and its execution history.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&models.ExecutionHistory{}).Error; err != nil {
			return apperr.Store("delete task", err)
		}
		res := tx.Delete(&models.ScheduledTask{}, id)
		if res.Error != nil {
			return apperr.Store("delete task", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("task", id)
		}
		return nil
	})
}

// SetTaskEnabled toggles whether the scheduler considers a task.
func (s *Store) SetTaskEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.withLock(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.ScheduledTask{}).Where("id = ?", id).Update("is_enabled", enabled)
		if res.Error != nil {
			return apperr.Store("set task enabled", res.Error)
		}
		if res.RowsAffected == 0 {
			// Updating to the current value reports zero rows on some drivers.
			var count int64
			if err := tx.Model(&models.ScheduledTask{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return apperr.Store("set task enabled", err)
			}
			if count == 0 {
				return apperr.NotFound("task", id)
			}
		}
		return nil
	})
}
