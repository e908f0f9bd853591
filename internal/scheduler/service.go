/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler polls the task table and fires due alarms.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/playout"
	"github.com/friendsincode/dawnchorus/internal/repeat"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// TaskStore is the persistence the scheduler needs.
type TaskStore interface {
	EnabledTasks(ctx context.Context) ([]models.ScheduledTask, error)
	BeginExecution(ctx context.Context, task models.ScheduledTask, at time.Time, runID string) (int64, store.SkipReason, error)
	FinishExecution(ctx context.Context, id int64, status models.ExecutionStatus, duration time.Duration, errText string) error
}

// Player plays a task's playlist to completion.
type Player interface {
	PlayPlaylist(ctx context.Context, playlistID int64, volume, fadeIn int, opts playout.Options) error
}

// Service orchestrates the alarm poll loop.
type Service struct {
	store    TaskStore
	player   Player
	bus      events.Publisher
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// New constructs the scheduler service.
func New(st TaskStore, player Player, bus events.Publisher, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{
		store:    st,
		player:   player,
		bus:      bus,
		interval: interval,
		now:      time.Now,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run executes the scheduler loop until the context is cancelled, then waits
// for dispatched playback to wind down.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler loop started")
	s.tick(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

type dueTask struct {
	task  models.ScheduledTask
	rowID int64
	runID string
}

func (s *Service) tick(ctx context.Context, now time.Time) {
	telemetry.SchedulerTicksTotal.Inc()
	timer := prometheus.NewTimer(telemetry.SchedulerTickDuration)
	defer timer.ObserveDuration()

	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.tick")
	defer span.End()

	tasks, err := s.store.EnabledTasks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler failed to load tasks")
		telemetry.SchedulerErrorsTotal.WithLabelValues("load_tasks").Inc()
		telemetry.RecordError(span, err)
		return
	}

	var due []dueTask
	for _, task := range tasks {
		slot, ok := firingSlot(task, now)
		if !ok {
			continue
		}
		if !repeat.ShouldFireToday(task.RepeatMode, task.CustomDays, slot.Weekday()) {
			telemetry.SchedulerTasksSkippedTotal.WithLabelValues("not_today").Inc()
			continue
		}

		// A slot in the previous day is booked against that day.
		at := now
		if slot.Day() != now.Day() {
			at = slot
		}

		runID := uuid.NewString()
		rowID, reason, err := s.store.BeginExecution(ctx, task, at, runID)
		if err != nil {
			s.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to record task start")
			telemetry.SchedulerErrorsTotal.WithLabelValues("begin_execution").Inc()
			continue
		}
		if reason != store.NotSkipped {
			telemetry.SchedulerTasksSkippedTotal.WithLabelValues(string(reason)).Inc()
			continue
		}

		s.logger.Info().
			Int64("task_id", task.ID).
			Str("task", task.Name).
			Str("run_id", runID).
			Int("hour", task.Hour).
			Int("minute", task.Minute).
			Msg("task due")
		due = append(due, dueTask{task: task, rowID: rowID, runID: runID})
	}

	if len(due) == 0 {
		return
	}

	// Due tasks run one after another in priority order, off the tick
	// goroutine so a long playlist does not delay the next poll.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, d := range due {
			s.execute(ctx, d)
		}
	}()
}

func (s *Service) execute(ctx context.Context, d dueTask) {
	task := d.task
	logger := s.logger.With().Int64("task_id", task.ID).Str("run_id", d.runID).Logger()

	s.publish(events.EventTaskFired, events.Payload{
		"task_id":     task.ID,
		"name":        task.Name,
		"playlist_id": task.PlaylistID,
		"run_id":      d.runID,
	})

	taskID := task.ID
	started := s.now()
	err := s.player.PlayPlaylist(ctx, task.PlaylistID, task.Volume, task.FadeInSeconds, playout.Options{
		TaskID: &taskID,
		RunID:  d.runID,
	})
	elapsed := s.now().Sub(started)

	status := models.ExecutionCompleted
	errText := ""
	outcome := "completed"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrSuperseded):
		// It played until something newer took the device.
		outcome = "superseded"
	default:
		status = models.ExecutionFailed
		errText = err.Error()
		outcome = "failed"
	}

	// The row must be closed even when shutdown cancelled the run.
	finishCtx := context.WithoutCancel(ctx)
	if ferr := s.store.FinishExecution(finishCtx, d.rowID, status, elapsed, errText); ferr != nil {
		logger.Error().Err(ferr).Msg("failed to record task result")
		telemetry.SchedulerErrorsTotal.WithLabelValues("finish_execution").Inc()
	}
	telemetry.SchedulerTasksFiredTotal.WithLabelValues(outcome).Inc()

	payload := events.Payload{
		"task_id":  task.ID,
		"run_id":   d.runID,
		"status":   string(status),
		"duration": int(elapsed.Seconds()),
	}
	if status == models.ExecutionFailed {
		payload["error"] = errText
		payload["code"] = apperr.Code(err)
		s.publish(events.EventTaskFailed, payload)
		logger.Error().Err(err).Msg("task failed")
		return
	}
	s.publish(events.EventTaskCompleted, payload)
	logger.Info().Str("outcome", outcome).Dur("elapsed", elapsed).Msg("task finished")
}

// firingSlot reports whether task falls in the window for now: the current
// minute or the one before it. It returns the start of the matching minute.
func firingSlot(task models.ScheduledTask, now time.Time) (time.Time, bool) {
	current := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	previous := current.Add(-time.Minute)

	switch {
	case task.Hour == current.Hour() && task.Minute == current.Minute():
		return current, true
	case task.Hour == previous.Hour() && task.Minute == previous.Minute():
		return previous, true
	default:
		return time.Time{}, false
	}
}

func (s *Service) publish(et events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(et, payload)
	}
}
