/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tasks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/conflict"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/store/storetest"
	"github.com/rs/zerolog"
)

func newService(t *testing.T) (*Service, *store.Store, *events.Bus) {
	t.Helper()
	st := storetest.New(t)
	bus := events.NewBus()
	detector := conflict.NewDetector(st, st, zerolog.Nop())
	return NewService(st, detector, bus, 45, zerolog.Nop()), st, bus
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestCreateAppliesDefaults(t *testing.T) {
	svc, st, bus := newService(t)
	pl := storetest.Playlist(t, st, "morning", 60)
	sub := bus.Subscribe(events.EventTaskChanged)

	task, err := svc.Create(context.Background(), Input{Name: "wake", Hour: 7, Minute: 0, PlaylistID: pl.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Volume != 45 || !task.IsEnabled || task.RepeatMode != models.RepeatDaily {
		t.Fatalf("unexpected defaults: %+v", task)
	}

	select {
	case payload := <-sub:
		if payload["task_id"] != task.ID {
			t.Fatalf("unexpected event payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a task changed event")
	}
}

func TestCreateKeepsExplicitZeroes(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "quiet", 60)

	task, err := svc.Create(context.Background(), Input{
		Name: "silent", Hour: 7, PlaylistID: pl.ID, Volume: intPtr(0), IsEnabled: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, err := st.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Volume != 0 || stored.IsEnabled {
		t.Fatalf("expected volume 0 and disabled, got %+v", stored)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 60)

	valid := func() Input {
		return Input{Name: "wake", Hour: 7, Minute: 0, PlaylistID: pl.ID}
	}

	tests := []struct {
		name   string
		mutate func(*Input)
		want   error
	}{
		{"missing name", func(in *Input) { in.Name = "" }, apperr.ErrInvalidSchedule},
		{"hour too large", func(in *Input) { in.Hour = 24 }, apperr.ErrInvalidSchedule},
		{"negative minute", func(in *Input) { in.Minute = -1 }, apperr.ErrInvalidSchedule},
		{"unknown mode", func(in *Input) { in.RepeatMode = "fortnightly" }, apperr.ErrInvalidSchedule},
		{"custom without days", func(in *Input) { in.RepeatMode = models.RepeatCustom }, apperr.ErrInvalidSchedule},
		{"custom day out of range", func(in *Input) {
			in.RepeatMode = models.RepeatCustom
			in.CustomDays = []int{1, 7}
		}, apperr.ErrInvalidSchedule},
		{"volume above 100", func(in *Input) { in.Volume = intPtr(101) }, apperr.ErrInvalidSchedule},
		{"negative fade", func(in *Input) { in.FadeInSeconds = -5 }, apperr.ErrInvalidSchedule},
		{"zero duration", func(in *Input) { in.DurationMinutes = intPtr(0) }, apperr.ErrInvalidSchedule},
		{"unknown playlist", func(in *Input) { in.PlaylistID = 999 }, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			if _, err := svc.Create(context.Background(), in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateDropsDaysForNonCustomModes(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 60)

	task, err := svc.Create(context.Background(), Input{
		Name: "weekday", Hour: 6, PlaylistID: pl.ID, RepeatMode: models.RepeatWeekday, CustomDays: []int{0},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !task.CustomDays.Empty() {
		t.Fatalf("expected days cleared, got %s", task.CustomDays)
	}
}

func TestUpdateAndToggle(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 60)
	task, err := svc.Create(context.Background(), Input{Name: "wake", Hour: 7, PlaylistID: pl.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(context.Background(), task.ID, Input{
		Name: "later", Hour: 8, Minute: 15, PlaylistID: pl.ID, RepeatMode: models.RepeatCustom, CustomDays: []int{2, 4},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Hour != 8 || updated.Minute != 15 || updated.CustomDays.String() != "[2,4]" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if err := svc.SetEnabled(context.Background(), task.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := svc.SetEnabled(context.Background(), 999, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Update(context.Background(), 999, Input{Name: "x", PlaylistID: pl.ID}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckConflicts(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 600)
	existing, err := svc.Create(context.Background(), Input{Name: "first", Hour: 7, Minute: 0, PlaylistID: pl.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.CheckConflicts(context.Background(), Input{Hour: 7, Minute: 5, PlaylistID: pl.ID}, nil)
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != existing.ID {
		t.Fatalf("expected conflict with task %d, got %+v", existing.ID, got)
	}

	got, err = svc.CheckConflicts(context.Background(), Input{Hour: 7, Minute: 5, PlaylistID: pl.ID}, &existing.ID)
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected editing task to be excluded, got %+v", got)
	}

	if _, err := svc.CheckConflicts(context.Background(), Input{Hour: 25, PlaylistID: pl.ID}, nil); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule, got %v", err)
	}
}

func TestCheckConflictsNormalisesMode(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 600)
	existing, err := svc.Create(context.Background(), Input{
		Name: "weekday", Hour: 7, PlaylistID: pl.ID, RepeatMode: models.RepeatWeekday,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name    string
		mode    models.RepeatMode
		days    []int
		want    int
		wantErr error
	}{
		{"lower case", "daily", nil, 1, nil},
		{"mixed case", "Daily", nil, 1, nil},
		{"padded", " WEEKDAY ", nil, 1, nil},
		{"custom weekend only", "Custom", []int{0, 6}, 0, nil},
		{"custom without days", "Custom", nil, 0, apperr.ErrInvalidSchedule},
		{"unknown", "Fortnightly", nil, 0, apperr.ErrInvalidSchedule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckConflicts(context.Background(), Input{
				Hour: 7, Minute: 5, PlaylistID: pl.ID, RepeatMode: tt.mode, CustomDays: tt.days,
			}, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("conflicts: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d conflicts, got %+v", tt.want, got)
			}
			if tt.want == 1 && got[0].TaskID != existing.ID {
				t.Fatalf("expected conflict with task %d, got %+v", existing.ID, got)
			}
		})
	}
}

func TestListComputesNextFire(t *testing.T) {
	svc, st, _ := newService(t)
	pl := storetest.Playlist(t, st, "morning", 60)
	if _, err := svc.Create(context.Background(), Input{Name: "wake", Hour: 7, Minute: 30, PlaylistID: pl.ID}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), Input{Name: "off", Hour: 9, PlaylistID: pl.ID, IsEnabled: boolPtr(false)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.Local)
	rows, err := svc.List(context.Background(), now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].PlaylistName != "morning" {
		t.Fatalf("expected joined playlist name, got %q", rows[0].PlaylistName)
	}
	want := time.Date(2026, 3, 5, 7, 30, 0, 0, time.Local)
	if rows[0].NextFireAt == nil || !rows[0].NextFireAt.Equal(want) {
		t.Fatalf("expected next fire %s, got %v", want, rows[0].NextFireAt)
	}
	if rows[1].NextFireAt != nil {
		t.Fatal("disabled tasks have no next fire time")
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newService(t)
	pl := storetest.Playlist(t, srcStore, "birdsong", 60)
	if _, err := src.Create(ctx, Input{
		Name: "weekdays", Hour: 6, Minute: 45, PlaylistID: pl.ID,
		RepeatMode: models.RepeatCustom, CustomDays: []int{1, 2, 3, 4, 5},
		Volume: intPtr(70), FadeInSeconds: 30, DurationMinutes: intPtr(20),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "playlist: birdsong") || !strings.Contains(buf.String(), "06:45") {
		t.Fatalf("unexpected export:\n%s", buf.String())
	}

	dst, dstStore, _ := newService(t)
	storetest.Playlist(t, dstStore, "birdsong", 60)
	res, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected 1 created, got %+v", res)
	}
	rows, err := dstStore.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := rows[0]
	if got.Hour != 6 || got.Minute != 45 || got.Volume != 70 || got.FadeInSeconds != 30 ||
		got.CustomDays.String() != "[1,2,3,4,5]" || got.DurationMinutes == nil || *got.DurationMinutes != 20 {
		t.Fatalf("imported task differs: %+v", got.ScheduledTask)
	}
}

func TestImportSkipsUnknownPlaylist(t *testing.T) {
	svc, _, _ := newService(t)
	doc := `version: 1
tasks:
  - name: orphan
    time: "07:00"
    repeat: daily
    playlist: missing
    volume: 50
    enabled: true
`
	res, err := svc.Import(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 0 || len(res.Skipped) != 1 || res.Skipped[0] != "orphan" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := svc.Import(context.Background(), strings.NewReader("version: 9\n")); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Fatalf("expected version rejection, got %v", err)
	}
}
