/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/playout"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/store/storetest"
	"github.com/rs/zerolog"
)

type fakePlayer struct {
	mu    sync.Mutex
	calls []playout.Options
	err   error
}

func (p *fakePlayer) PlayPlaylist(_ context.Context, _ int64, _, _ int, opts playout.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, opts)
	return p.err
}

func (p *fakePlayer) played() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, 0, len(p.calls))
	for _, c := range p.calls {
		ids = append(ids, *c.TaskID)
	}
	return ids
}

// 2026-03-04 is a Wednesday.
func at(day, hour, minute, second int) time.Time {
	return time.Date(2026, 3, day, hour, minute, second, 0, time.Local)
}

func newService(t *testing.T, player Player) (*Service, *store.Store, *models.Playlist) {
	t.Helper()
	st := storetest.New(t)
	pl := storetest.Playlist(t, st, "alarm", 30)
	return New(st, player, nil, time.Second, zerolog.Nop()), st, pl
}

func (s *Service) tickAndWait(now time.Time) {
	s.tick(context.Background(), now)
	s.wg.Wait()
}

func TestFiringSlot(t *testing.T) {
	tests := []struct {
		name         string
		hour, minute int
		now          time.Time
		want         bool
	}{
		{"current minute", 10, 0, at(4, 10, 0, 5), true},
		{"previous minute rolls back an hour", 9, 59, at(4, 10, 0, 5), true},
		{"two minutes ago", 9, 58, at(4, 10, 0, 5), false},
		{"next minute", 10, 1, at(4, 10, 0, 5), false},
		{"previous minute rolls back a day", 23, 59, at(5, 0, 0, 30), true},
		{"mid hour", 7, 30, at(4, 7, 31, 59), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := firingSlot(models.ScheduledTask{Hour: tt.hour, Minute: tt.minute}, tt.now)
			if ok != tt.want {
				t.Fatalf("firingSlot(%02d:%02d, %s) = %v, want %v", tt.hour, tt.minute, tt.now.Format("15:04:05"), ok, tt.want)
			}
		})
	}
}

func TestTickWindowRollover(t *testing.T) {
	player := &fakePlayer{}
	svc, st, pl := newService(t, player)

	early := storetest.Task(t, st, models.ScheduledTask{Name: "early", Hour: 9, Minute: 59, PlaylistID: pl.ID, IsEnabled: true})
	onTime := storetest.Task(t, st, models.ScheduledTask{Name: "on time", Hour: 10, Minute: 0, PlaylistID: pl.ID, IsEnabled: true})
	storetest.Task(t, st, models.ScheduledTask{Name: "later", Hour: 10, Minute: 1, PlaylistID: pl.ID, IsEnabled: true})

	svc.tickAndWait(at(4, 10, 0, 3))

	got := player.played()
	want := []int64{early.ID, onTime.ID}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v to fire, got %v", want, got)
	}
}

func TestTickFiresOncePerDay(t *testing.T) {
	player := &fakePlayer{}
	svc, st, pl := newService(t, player)
	task := storetest.Task(t, st, models.ScheduledTask{Hour: 7, Minute: 0, PlaylistID: pl.ID, IsEnabled: true})

	// One tick per second across the whole window.
	for s := 0; s < 120; s++ {
		svc.tickAndWait(at(4, 7, 0, 0).Add(time.Duration(s) * time.Second))
	}

	if n := len(player.played()); n != 1 {
		t.Fatalf("expected one firing, got %d", n)
	}
	rows, err := st.TaskHistory(context.Background(), task.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one history row, got %d", len(rows))
	}
	if rows[0].Status != models.ExecutionCompleted || rows[0].RunID != player.calls[0].RunID {
		t.Fatalf("unexpected history row %+v", rows[0])
	}

	// Next day it fires again.
	svc.tickAndWait(at(5, 7, 0, 10))
	if n := len(player.played()); n != 2 {
		t.Fatalf("expected a second firing the next day, got %d", n)
	}
}

func TestTickOnceFiresOnlyOnce(t *testing.T) {
	player := &fakePlayer{}
	svc, st, pl := newService(t, player)
	storetest.Task(t, st, models.ScheduledTask{Hour: 6, Minute: 30, RepeatMode: models.RepeatOnce, PlaylistID: pl.ID, IsEnabled: true})

	for day := 4; day < 8; day++ {
		svc.tickAndWait(at(day, 6, 30, 0))
	}
	if n := len(player.played()); n != 1 {
		t.Fatalf("expected a once task to fire a single time, got %d", n)
	}
}

func TestTickMidnightRollover(t *testing.T) {
	player := &fakePlayer{}
	svc, st, pl := newService(t, player)
	storetest.Task(t, st, models.ScheduledTask{Hour: 23, Minute: 59, PlaylistID: pl.ID, IsEnabled: true})

	svc.tickAndWait(at(4, 23, 59, 50))
	svc.tickAndWait(at(5, 0, 0, 0))
	if n := len(player.played()); n != 1 {
		t.Fatalf("expected the 23:59 task to fire once around midnight, got %d", n)
	}
}

func TestTickRespectsCadence(t *testing.T) {
	player := &fakePlayer{}
	svc, st, pl := newService(t, player)
	storetest.Task(t, st, models.ScheduledTask{Name: "weekend", Hour: 8, Minute: 0, RepeatMode: models.RepeatWeekend, PlaylistID: pl.ID, IsEnabled: true})
	custom := storetest.Task(t, st, models.ScheduledTask{
		Name: "mwf", Hour: 8, Minute: 0, RepeatMode: models.RepeatCustom,
		CustomDays: models.MustDaySet(1, 3, 5), PlaylistID: pl.ID, IsEnabled: true,
	})
	storetest.Task(t, st, models.ScheduledTask{Name: "off", Hour: 8, Minute: 0, PlaylistID: pl.ID, IsEnabled: false})

	svc.tickAndWait(at(4, 8, 0, 0))

	got := player.played()
	if len(got) != 1 || got[0] != custom.ID {
		t.Fatalf("expected only the Wednesday task, got %v", got)
	}
}

func TestTickRecordsOutcome(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status models.ExecutionStatus
	}{
		{"success", nil, models.ExecutionCompleted},
		{"superseded counts as completed", apperr.ErrSuperseded, models.ExecutionCompleted},
		{"device failure", apperr.Device("play", errors.New("no sink")), models.ExecutionFailed},
		{"empty playlist", apperr.ErrEmptyPlaylist, models.ExecutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{err: tt.err}
			svc, st, pl := newService(t, player)
			task := storetest.Task(t, st, models.ScheduledTask{Hour: 7, Minute: 0, PlaylistID: pl.ID, IsEnabled: true})

			svc.tickAndWait(at(4, 7, 0, 0))

			rows, err := st.TaskHistory(context.Background(), task.ID, 10)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(rows) != 1 || rows[0].Status != tt.status {
				t.Fatalf("expected one %s row, got %+v", tt.status, rows)
			}
			if tt.status == models.ExecutionFailed && rows[0].Error == "" {
				t.Fatal("expected failure text on the row")
			}
		})
	}
}

type failingStore struct{ TaskStore }

func (failingStore) EnabledTasks(context.Context) ([]models.ScheduledTask, error) {
	return nil, apperr.Store("enabled tasks", errors.New("disk I/O error"))
}

func TestTickSurvivesStoreErrors(t *testing.T) {
	player := &fakePlayer{}
	svc := New(failingStore{}, player, nil, time.Second, zerolog.Nop())

	svc.tickAndWait(at(4, 7, 0, 0))
	svc.tickAndWait(at(4, 7, 0, 10))
	if len(player.played()) != 0 {
		t.Fatal("expected nothing to fire")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _, _ := newService(t, &fakePlayer{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
