/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"gorm.io/gorm"
)

// SkipReason explains why BeginExecution declined to start a task.
type SkipReason string

const (
	NotSkipped     SkipReason = ""
	SkipOnceFired  SkipReason = "once_already_fired"
	SkipFiredToday SkipReason = "already_fired_today"
)

// BeginExecution is the scheduler's idempotency gate. Inside one locked
// transaction it checks that the task has no history row since local
// midnight (and, for a once task, no history row at all) and, if so, inserts
// a started row. It returns the new row ID, or the reason nothing was inserted.
func (s *Store) BeginExecution(ctx context.Context, task models.ScheduledTask, at time.Time, runID string) (int64, SkipReason, error) {
	var (
		id     int64
		reason SkipReason
	)
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if task.RepeatMode == models.RepeatOnce {
			fired, err := exists(tx.Where("task_id = ?", task.ID))
			if err != nil {
				return err
			}
			if fired {
				reason = SkipOnceFired
				return nil
			}
		}

		firedToday, err := exists(tx.Where("task_id = ? AND execution_time >= ?", task.ID, LocalMidnight(at)))
		if err != nil {
			return err
		}
		if firedToday {
			reason = SkipFiredToday
			return nil
		}

		row := &models.ExecutionHistory{
			TaskID:        task.ID,
			ExecutionTime: at,
			Status:        models.ExecutionStarted,
			RunID:         runID,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return 0, NotSkipped, apperr.Store("begin execution", err)
	}
	return id, reason, nil
}

func exists(q *gorm.DB) (bool, error) {
	var count int64
	if err := q.Model(&models.ExecutionHistory{}).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FinishExecution moves one history row, identified by its ID, to a terminal status.
func (s *Store) FinishExecution(ctx context.Context, id int64, status models.ExecutionStatus, duration time.Duration, errText string) error {
	seconds := int(duration.Round(time.Second) / time.Second)
	return s.withLock(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.ExecutionHistory{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":   status,
				"duration": seconds,
				"error":    errText,
			})
		if res.Error != nil {
			return apperr.Store("finish execution", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("execution", id)
		}
		return nil
	})
}

// EverExecuted reports whether the task has any history row.
func (s *Store) EverExecuted(ctx context.Context, taskID int64) (bool, error) {
	var fired bool
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		var err error
		fired, err = exists(tx.Where("task_id = ?", taskID))
		return err
	})
	if err != nil {
		return false, apperr.Store("ever executed", err)
	}
	return fired, nil
}

// ExecutedSince reports whether the task has a history row at or after since.
func (s *Store) ExecutedSince(ctx context.Context, taskID int64, since time.Time) (bool, error) {
	var fired bool
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		var err error
		fired, err = exists(tx.Where("task_id = ? AND execution_time >= ?", taskID, since))
		return err
	})
	if err != nil {
		return false, apperr.Store("executed since", err)
	}
	return fired, nil
}

// TaskHistory returns the newest history rows for a task.
func (s *Store) TaskHistory(ctx context.Context, taskID int64, limit int) ([]models.ExecutionHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.ExecutionHistory
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Where("task_id = ?", taskID).Order("execution_time DESC, id DESC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, apperr.Store("task history", err)
	}
	return rows, nil
}

// FailInterrupted marks rows left in started state by a previous process as failed.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	var n int64
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.ExecutionHistory{}).
			Where("status = ?", models.ExecutionStarted).
			Updates(map[string]any{"status": models.ExecutionFailed, "error": "interrupted by restart"})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, apperr.Store("fail interrupted", err)
	}
	return n, nil
}
