/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package repeat

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
)

func TestShouldFireToday(t *testing.T) {
	mwf := models.MustDaySet(1, 3, 5)
	tests := []struct {
		name    string
		mode    models.RepeatMode
		days    models.DaySet
		weekday time.Weekday
		want    bool
	}{
		{"daily sunday", models.RepeatDaily, 0, time.Sunday, true},
		{"once saturday", models.RepeatOnce, 0, time.Saturday, true},
		{"weekday monday", models.RepeatWeekday, 0, time.Monday, true},
		{"weekday friday", models.RepeatWeekday, 0, time.Friday, true},
		{"weekday saturday", models.RepeatWeekday, 0, time.Saturday, false},
		{"weekday sunday", models.RepeatWeekday, 0, time.Sunday, false},
		{"weekend sunday", models.RepeatWeekend, 0, time.Sunday, true},
		{"weekend saturday", models.RepeatWeekend, 0, time.Saturday, true},
		{"weekend wednesday", models.RepeatWeekend, 0, time.Wednesday, false},
		{"custom member", models.RepeatCustom, mwf, time.Wednesday, true},
		{"custom non member", models.RepeatCustom, mwf, time.Tuesday, false},
		{"custom empty", models.RepeatCustom, 0, time.Monday, false},
		{"unknown mode", models.RepeatMode("hourly"), 0, time.Monday, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFireToday(tt.mode, tt.days, tt.weekday); got != tt.want {
				t.Fatalf("ShouldFireToday(%s, %s, %s) = %v, want %v", tt.mode, tt.days, tt.weekday, got, tt.want)
			}
		})
	}
}

func TestCadencesMayCollide(t *testing.T) {
	tests := []struct {
		name  string
		a     models.RepeatMode
		aDays models.DaySet
		b     models.RepeatMode
		bDays models.DaySet
		want  bool
	}{
		{"once vs weekend", models.RepeatOnce, 0, models.RepeatWeekend, 0, true},
		{"once vs custom", models.RepeatOnce, 0, models.RepeatCustom, models.MustDaySet(3), true},
		{"daily vs weekday", models.RepeatDaily, 0, models.RepeatWeekday, 0, true},
		{"weekday vs weekday", models.RepeatWeekday, 0, models.RepeatWeekday, 0, true},
		{"weekday vs weekend", models.RepeatWeekday, 0, models.RepeatWeekend, 0, false},
		{"weekday vs custom friday", models.RepeatWeekday, 0, models.RepeatCustom, models.MustDaySet(5), true},
		{"weekday vs custom sunday", models.RepeatWeekday, 0, models.RepeatCustom, models.MustDaySet(0), false},
		{"weekend vs custom saturday", models.RepeatWeekend, 0, models.RepeatCustom, models.MustDaySet(6, 2), true},
		{"weekend vs custom midweek", models.RepeatWeekend, 0, models.RepeatCustom, models.MustDaySet(2, 3), false},
		{"custom overlap", models.RepeatCustom, models.MustDaySet(1, 2), models.RepeatCustom, models.MustDaySet(2, 4), true},
		{"custom disjoint", models.RepeatCustom, models.MustDaySet(1, 2), models.RepeatCustom, models.MustDaySet(3, 4), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CadencesMayCollide(tt.a, tt.aDays, tt.b, tt.bDays)
			if got != tt.want {
				t.Fatalf("collide(a,b) = %v, want %v", got, tt.want)
			}
			if rev := CadencesMayCollide(tt.b, tt.bDays, tt.a, tt.aDays); rev != got {
				t.Fatalf("relation not symmetric: collide(b,a) = %v", rev)
			}
		})
	}
}

func TestCadencesMayCollideSymmetricExhaustive(t *testing.T) {
	modes := []models.RepeatMode{models.RepeatDaily, models.RepeatWeekday, models.RepeatWeekend, models.RepeatCustom, models.RepeatOnce}
	sets := []models.DaySet{0, models.MustDaySet(0), models.MustDaySet(3), models.MustDaySet(0, 6), models.MustDaySet(1, 2, 3, 4, 5)}

	for _, a := range modes {
		for _, b := range modes {
			for _, ad := range sets {
				for _, bd := range sets {
					if CadencesMayCollide(a, ad, b, bd) != CadencesMayCollide(b, bd, a, ad) {
						t.Fatalf("asymmetric for %s%s vs %s%s", a, ad, b, bd)
					}
				}
			}
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(models.RepeatCustom, 0); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule for empty custom days, got %v", err)
	}
	if err := Validate("fortnightly", 0); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule for unknown mode, got %v", err)
	}
	if err := Validate("Custom", 0); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule for mixed-case custom without days, got %v", err)
	}
	if err := Validate(models.RepeatCustom, models.MustDaySet(2)); err != nil {
		t.Fatalf("expected valid custom cadence: %v", err)
	}
	if mode, err := ParseMode(" Weekend "); err != nil || mode != models.RepeatWeekend {
		t.Fatalf("ParseMode = %q, %v", mode, err)
	}
}

func TestRRule(t *testing.T) {
	tests := []struct {
		mode models.RepeatMode
		days models.DaySet
		want string
	}{
		{models.RepeatDaily, 0, "FREQ=DAILY"},
		{models.RepeatWeekday, 0, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"},
		{models.RepeatWeekend, 0, "FREQ=WEEKLY;BYDAY=SU,SA"},
		{models.RepeatCustom, models.MustDaySet(1, 3, 5), "FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		{models.RepeatOnce, 0, "FREQ=DAILY;COUNT=1"},
	}
	for _, tt := range tests {
		got, err := RRule(tt.mode, tt.days)
		if err != nil {
			t.Fatalf("RRule(%s): %v", tt.mode, err)
		}
		if got != tt.want {
			t.Fatalf("RRule(%s) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestNextFireTime(t *testing.T) {
	// 2026-03-04 is a Wednesday.
	wed := time.Date(2026, 3, 4, 6, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		task      models.ScheduledTask
		after     time.Time
		everFired bool
		want      time.Time
	}{
		{
			name:  "daily later today",
			task:  models.ScheduledTask{Hour: 7, Minute: 0, RepeatMode: models.RepeatDaily},
			after: wed,
			want:  time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC),
		},
		{
			name:  "daily already passed",
			task:  models.ScheduledTask{Hour: 6, Minute: 0, RepeatMode: models.RepeatDaily},
			after: wed,
			want:  time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "weekend from wednesday",
			task:  models.ScheduledTask{Hour: 9, Minute: 15, RepeatMode: models.RepeatWeekend},
			after: wed,
			want:  time.Date(2026, 3, 7, 9, 15, 0, 0, time.UTC),
		},
		{
			name:  "custom monday from wednesday",
			task:  models.ScheduledTask{Hour: 7, Minute: 0, RepeatMode: models.RepeatCustom, CustomDays: models.MustDaySet(1)},
			after: wed,
			want:  time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC),
		},
		{
			name:  "once not yet fired",
			task:  models.ScheduledTask{Hour: 5, Minute: 0, RepeatMode: models.RepeatOnce},
			after: wed,
			want:  time.Date(2026, 3, 5, 5, 0, 0, 0, time.UTC),
		},
		{
			name:      "once already fired",
			task:      models.ScheduledTask{Hour: 5, Minute: 0, RepeatMode: models.RepeatOnce},
			after:     wed,
			everFired: true,
			want:      time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextFireTime(tt.task, tt.after, tt.everFired)
			if err != nil {
				t.Fatalf("next fire: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
