/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package repeat evaluates task cadences: whether a task may fire on a given
// weekday, whether two cadences can ever land on the same day, and when a
// task fires next.
package repeat

import (
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/teambition/rrule-go"
)

var (
	workDays = models.MustDaySet(1, 2, 3, 4, 5)
	restDays = models.MustDaySet(0, 6)
)

// ParseMode converts user input into a RepeatMode.
func ParseMode(s string) (models.RepeatMode, error) {
	mode := models.RepeatMode(strings.ToLower(strings.TrimSpace(s)))
	switch mode {
	case models.RepeatDaily, models.RepeatWeekday, models.RepeatWeekend, models.RepeatCustom, models.RepeatOnce:
		return mode, nil
	}
	return "", apperr.Invalid("repeat_mode", fmt.Sprintf("unknown mode %q", s))
}

// Validate checks that a cadence is well formed: the mode is known and a
// custom mode names at least one weekday.
func Validate(mode models.RepeatMode, days models.DaySet) error {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	if parsed == models.RepeatCustom && days.Empty() {
		return apperr.Invalid("custom_days", "custom repeat mode requires at least one weekday")
	}
	return nil
}

// ShouldFireToday reports whether a task with this cadence may fire on weekday.
// A once task always may; its lifetime limit is enforced from execution history.
func ShouldFireToday(mode models.RepeatMode, days models.DaySet, weekday time.Weekday) bool {
	switch mode {
	case models.RepeatDaily, models.RepeatOnce:
		return true
	case models.RepeatWeekday:
		return workDays.Has(weekday)
	case models.RepeatWeekend:
		return restDays.Has(weekday)
	case models.RepeatCustom:
		return days.Has(weekday)
	default:
		return false
	}
}

// CadencesMayCollide reports whether two cadences can fire on a common day.
// The relation is symmetric.
func CadencesMayCollide(a models.RepeatMode, aDays models.DaySet, b models.RepeatMode, bDays models.DaySet) bool {
	return collides(a, aDays, b, bDays) || collides(b, bDays, a, aDays)
}

func collides(a models.RepeatMode, aDays models.DaySet, b models.RepeatMode, bDays models.DaySet) bool {
	switch a {
	case models.RepeatOnce, models.RepeatDaily:
		return true
	case models.RepeatWeekday:
		switch b {
		case models.RepeatWeekday:
			return true
		case models.RepeatCustom:
			return bDays.Intersects(workDays)
		}
	case models.RepeatWeekend:
		switch b {
		case models.RepeatWeekend:
			return true
		case models.RepeatCustom:
			return bDays.Intersects(restDays)
		}
	case models.RepeatCustom:
		if b == models.RepeatCustom {
			return aDays.Intersects(bDays)
		}
	}
	return false
}

var rruleDays = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// RRule renders a cadence as an RFC 5545 recurrence rule. A once task is
// rendered as a single daily occurrence.
func RRule(mode models.RepeatMode, days models.DaySet) (string, error) {
	if err := Validate(mode, days); err != nil {
		return "", err
	}
	switch mode {
	case models.RepeatDaily:
		return "FREQ=DAILY", nil
	case models.RepeatOnce:
		return "FREQ=DAILY;COUNT=1", nil
	case models.RepeatWeekday:
		return weeklyRule(workDays), nil
	case models.RepeatWeekend:
		return weeklyRule(restDays), nil
	default:
		return weeklyRule(days), nil
	}
}

func weeklyRule(days models.DaySet) string {
	codes := make([]string, 0, 7)
	for _, d := range days.Weekdays() {
		codes = append(codes, rruleDays[d])
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
}

// NextFireTime returns the next local time at or after `after` when the task
// is scheduled to fire. It returns the zero time for a once task that has
// already fired.
func NextFireTime(task models.ScheduledTask, after time.Time, everFired bool) (time.Time, error) {
	if task.RepeatMode == models.RepeatOnce && everFired {
		return time.Time{}, nil
	}
	rule, err := RRule(task.RepeatMode, task.CustomDays)
	if err != nil {
		return time.Time{}, err
	}
	if task.RepeatMode == models.RepeatOnce {
		// Unlike COUNT=1, a once task that missed today's slot still fires tomorrow.
		rule = "FREQ=DAILY"
	}
	rr, err := rrule.StrToRRule(rule)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse rrule %q: %w", rule, err)
	}

	y, m, d := after.Date()
	// Start a day early so today's slot is included when it has not passed yet.
	rr.DTStart(time.Date(y, m, d-1, task.Hour, task.Minute, 0, 0, after.Location()))
	return rr.After(after, true), nil
}
