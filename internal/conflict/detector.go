/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package conflict warns about scheduled tasks whose playback windows overlap.
package conflict

import (
	"context"
	"fmt"

	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/repeat"
	"github.com/rs/zerolog"
)

const minutesPerDay = 24 * 60

// TaskSource lists the tasks the scheduler would consider.
type TaskSource interface {
	EnabledTasks(ctx context.Context) ([]models.ScheduledTask, error)
}

// DurationSource reports the summed entry durations of a playlist in seconds.
type DurationSource interface {
	PlaylistDurationSeconds(ctx context.Context, playlistID int64) (int, error)
}

// Candidate is a proposed task definition.
type Candidate struct {
	Hour            int
	Minute          int
	RepeatMode      models.RepeatMode
	CustomDays      models.DaySet
	PlaylistID      int64
	DurationMinutes *int
}

// CandidateFromTask builds a Candidate from a stored task.
func CandidateFromTask(t models.ScheduledTask) Candidate {
	return Candidate{
		Hour:            t.Hour,
		Minute:          t.Minute,
		RepeatMode:      t.RepeatMode,
		CustomDays:      t.CustomDays,
		PlaylistID:      t.PlaylistID,
		DurationMinutes: t.DurationMinutes,
	}
}

// Conflict identifies an existing task that overlaps the candidate.
type Conflict struct {
	TaskID int64  `json:"task_id"`
	Name   string `json:"name"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// Detector checks candidates against the enabled tasks. It never writes.
type Detector struct {
	tasks     TaskSource
	durations DurationSource
	logger    zerolog.Logger
}

// NewDetector creates a conflict detector.
func NewDetector(tasks TaskSource, durations DurationSource, logger zerolog.Logger) *Detector {
	return &Detector{
		tasks:     tasks,
		durations: durations,
		logger:    logger.With().Str("component", "conflict").Logger(),
	}
}

// interval is a half-open range of minutes since local midnight. The end is
// not wrapped past midnight, so a task that runs across midnight is only
// compared against tasks later the same evening.
type interval struct {
	start, end int
}

func (i interval) overlaps(o interval) bool {
	return i.start < o.end && o.start < i.end
}

// EffectiveMinutes returns the explicit duration when set, otherwise the
// playlist duration rounded up to whole minutes.
func (d *Detector) EffectiveMinutes(ctx context.Context, c Candidate) (int, error) {
	if c.DurationMinutes != nil {
		return *c.DurationMinutes, nil
	}
	seconds, err := d.durations.PlaylistDurationSeconds(ctx, c.PlaylistID)
	if err != nil {
		return 0, fmt.Errorf("playlist %d duration: %w", c.PlaylistID, err)
	}
	return MinutesCeil(seconds), nil
}

// MinutesCeil rounds seconds up to whole minutes.
func MinutesCeil(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

func (d *Detector) window(ctx context.Context, c Candidate) (interval, error) {
	minutes, err := d.EffectiveMinutes(ctx, c)
	if err != nil {
		return interval{}, err
	}
	start := c.Hour*60 + c.Minute
	return interval{start: start, end: start + minutes}, nil
}

// FindConflicts returns every enabled task, other than excludingID, whose
// cadence can share a day with the candidate and whose playback window
// overlaps the candidate's.
func (d *Detector) FindConflicts(ctx context.Context, c Candidate, excludingID *int64) ([]Conflict, error) {
	mine, err := d.window(ctx, c)
	if err != nil {
		return nil, err
	}
	if mine.end > minutesPerDay {
		d.logger.Debug().Int("start", mine.start).Int("end", mine.end).Msg("candidate runs past midnight; overlap is checked within the day only")
	}

	tasks, err := d.tasks.EnabledTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	conflicts := make([]Conflict, 0)
	for _, other := range tasks {
		if excludingID != nil && other.ID == *excludingID {
			continue
		}
		if !repeat.CadencesMayCollide(c.RepeatMode, c.CustomDays, other.RepeatMode, other.CustomDays) {
			continue
		}
		theirs, err := d.window(ctx, CandidateFromTask(other))
		if err != nil {
			return nil, err
		}
		if mine.overlaps(theirs) {
			conflicts = append(conflicts, Conflict{
				TaskID: other.ID,
				Name:   other.Name,
				Hour:   other.Hour,
				Minute: other.Minute,
			})
		}
	}
	return conflicts, nil
}
