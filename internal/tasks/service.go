/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tasks validates and applies changes to scheduled tasks.
package tasks

import (
	"context"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/conflict"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/repeat"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/rs/zerolog"
)

// Input is a task definition as submitted by a client. Optional fields left
// nil take their defaults: volume from configuration, enabled true.
type Input struct {
	Name            string            `json:"name"`
	Hour            int               `json:"hour"`
	Minute          int               `json:"minute"`
	RepeatMode      models.RepeatMode `json:"repeat_mode"`
	CustomDays      []int             `json:"custom_days"`
	PlaylistID      int64             `json:"playlist_id"`
	Volume          *int              `json:"volume"`
	FadeInSeconds   int               `json:"fade_in_duration"`
	DurationMinutes *int              `json:"duration_minutes"`
	IsEnabled       *bool             `json:"is_enabled"`
	Priority        int               `json:"priority"`
}

// Service applies task commands.
type Service struct {
	store         *store.Store
	detector      *conflict.Detector
	bus           events.Publisher
	defaultVolume int
	logger        zerolog.Logger
}

// NewService creates a task service.
func NewService(st *store.Store, detector *conflict.Detector, bus events.Publisher, defaultVolume int, logger zerolog.Logger) *Service {
	return &Service{
		store:         st,
		detector:      detector,
		bus:           bus,
		defaultVolume: defaultVolume,
		logger:        logger.With().Str("component", "tasks").Logger(),
	}
}

// List returns every task with its playlist name and next firing time.
func (s *Service) List(ctx context.Context, now time.Time) ([]models.TaskListing, error) {
	rows, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		task := rows[i].ScheduledTask
		if !task.IsEnabled {
			continue
		}
		fired := false
		if task.RepeatMode == models.RepeatOnce {
			if fired, err = s.store.EverExecuted(ctx, task.ID); err != nil {
				return nil, err
			}
		}
		next, err := repeat.NextFireTime(task, now, fired)
		if err != nil {
			s.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("cannot compute next fire time")
			continue
		}
		if !next.IsZero() {
			rows[i].NextFireAt = &next
		}
	}
	return rows, nil
}

// Get loads one task.
func (s *Service) Get(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	return s.store.GetTask(ctx, id)
}

// Create validates and stores a new task.
func (s *Service) Create(ctx context.Context, in Input) (*models.ScheduledTask, error) {
	task, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTask(ctx, &task); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("task_id", task.ID).Str("name", task.Name).Msg("task created")
	s.changed(task.ID, "created")
	return &task, nil
}

// Update replaces the definition of task id.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*models.ScheduledTask, error) {
	task, err := s.build(in)
	if err != nil {
		return nil, err
	}
	task.ID = id
	if err := s.store.UpdateTask(ctx, &task); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("task_id", id).Msg("task updated")
	s.changed(id, "updated")
	return &task, nil
}

// Delete removes a task and its history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("task_id", id).Msg("task deleted")
	s.changed(id, "deleted")
	return nil
}

// SetEnabled toggles a task.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.store.SetTaskEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.logger.Info().Int64("task_id", id).Bool("enabled", enabled).Msg("task toggled")
	s.changed(id, "toggled")
	return nil
}

// CheckConflicts lists enabled tasks whose playback would overlap the
// candidate, ignoring excludingID when editing an existing task.
func (s *Service) CheckConflicts(ctx context.Context, in Input, excludingID *int64) ([]conflict.Conflict, error) {
	days, err := models.NewDaySet(in.CustomDays...)
	if err != nil {
		return nil, apperr.Invalid("custom_days", err.Error())
	}
	if err := validateTime(in.Hour, in.Minute); err != nil {
		return nil, err
	}
	mode, err := parseMode(in.RepeatMode)
	if err != nil {
		return nil, err
	}
	if err := repeat.Validate(mode, days); err != nil {
		return nil, err
	}
	return s.detector.FindConflicts(ctx, conflict.Candidate{
		Hour:            in.Hour,
		Minute:          in.Minute,
		RepeatMode:      mode,
		CustomDays:      days,
		PlaylistID:      in.PlaylistID,
		DurationMinutes: in.DurationMinutes,
	}, excludingID)
}

// History returns the most recent executions of a task.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]models.ExecutionHistory, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.TaskHistory(ctx, id, limit)
}

// parseMode normalises a requested mode; empty means daily.
func parseMode(mode models.RepeatMode) (models.RepeatMode, error) {
	if mode == "" {
		return models.RepeatDaily, nil
	}
	return repeat.ParseMode(string(mode))
}

func (s *Service) build(in Input) (models.ScheduledTask, error) {
	if in.Name == "" {
		return models.ScheduledTask{}, apperr.Invalid("name", "is required")
	}
	if err := validateTime(in.Hour, in.Minute); err != nil {
		return models.ScheduledTask{}, err
	}

	mode, err := parseMode(in.RepeatMode)
	if err != nil {
		return models.ScheduledTask{}, err
	}
	days, err := models.NewDaySet(in.CustomDays...)
	if err != nil {
		return models.ScheduledTask{}, apperr.Invalid("custom_days", err.Error())
	}
	if err := repeat.Validate(mode, days); err != nil {
		return models.ScheduledTask{}, err
	}
	if mode != models.RepeatCustom {
		days = 0
	}

	volume := s.defaultVolume
	if in.Volume != nil {
		volume = *in.Volume
	}
	if volume < 0 || volume > 100 {
		return models.ScheduledTask{}, apperr.Invalid("volume", "must be between 0 and 100")
	}
	if in.FadeInSeconds < 0 {
		return models.ScheduledTask{}, apperr.Invalid("fade_in_duration", "must not be negative")
	}
	if in.DurationMinutes != nil && *in.DurationMinutes < 1 {
		return models.ScheduledTask{}, apperr.Invalid("duration_minutes", "must be at least 1")
	}
	if in.PlaylistID <= 0 {
		return models.ScheduledTask{}, apperr.Invalid("playlist_id", "is required")
	}

	enabled := true
	if in.IsEnabled != nil {
		enabled = *in.IsEnabled
	}

	return models.ScheduledTask{
		Name:            in.Name,
		Hour:            in.Hour,
		Minute:          in.Minute,
		RepeatMode:      mode,
		CustomDays:      days,
		PlaylistID:      in.PlaylistID,
		Volume:          volume,
		FadeInSeconds:   in.FadeInSeconds,
		DurationMinutes: in.DurationMinutes,
		IsEnabled:       enabled,
		Priority:        in.Priority,
	}, nil
}

func validateTime(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return apperr.Invalid("hour", "must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return apperr.Invalid("minute", "must be between 0 and 59")
	}
	return nil
}

func (s *Service) changed(id int64, action string) {
	if s.bus != nil {
		s.bus.Publish(events.EventTaskChanged, events.Payload{"task_id": id, "action": action})
	}
}
