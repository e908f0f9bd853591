/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store/storetest"
)

func TestRegisterAudio(t *testing.T) {
	dir := t.TempDir()
	onDisk := filepath.Join(dir, "Birdsong.OGG")
	if err := os.WriteFile(onDisk, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tests := []struct {
		name       string
		inName     string
		path       string
		duration   int
		wantName   string
		wantFormat string
		wantSize   int64
		wantErr    error
	}{
		{"present file", "", onDisk, 270, "Birdsong", "ogg", 2048, nil},
		{"explicit name", "Morning birds", onDisk, 270, "Morning birds", "ogg", 2048, nil},
		{"missing file", "", filepath.Join(dir, "rain.mp3"), 60, "rain", "mp3", 0, nil},
		{"negative duration", "", onDisk, -1, "", "", 0, apperr.ErrInvalidSchedule},
	}

	svc := NewService(storetest.New(t), nil, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audio, err := svc.RegisterAudio(context.Background(), tt.inName, tt.path, tt.duration)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("register: %v", err)
			}
			if audio.ID == 0 {
				t.Fatal("expected an id")
			}
			if audio.Name != tt.wantName || audio.Format != tt.wantFormat || audio.FileSize != tt.wantSize {
				t.Fatalf("got name=%q format=%q size=%d", audio.Name, audio.Format, audio.FileSize)
			}
		})
	}
}

func TestPlaylistEditsPublishChanges(t *testing.T) {
	st := storetest.New(t)
	bus := events.NewBus()
	changes := bus.Subscribe(events.EventPlaylistChanged)
	svc := NewService(st, bus, zerolog.Nop())
	ctx := context.Background()

	pl, err := svc.CreatePlaylist(ctx, "wake")
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	first := storetest.Audio(t, st, "first", 30)
	second := storetest.Audio(t, st, "second", 45)
	if _, err := svc.AddItem(ctx, pl.ID, first.ID); err != nil {
		t.Fatalf("add first: %v", err)
	}
	item, err := svc.AddItem(ctx, pl.ID, second.ID)
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := svc.RemoveItem(ctx, pl.ID, item.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	entries, err := st.PlaylistEntries(ctx, pl.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].AudioID != first.ID {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if got := len(changes); got != 4 {
		t.Fatalf("expected 4 playlist.changed events, got %d", got)
	}
	payload := <-changes
	if payload["playlist_id"] != pl.ID {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestAddItemUnknownAudio(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st, nil, zerolog.Nop())
	pl := storetest.Playlist(t, st, "empty")

	if _, err := svc.AddItem(context.Background(), pl.ID, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePlaylistRemovesTasks(t *testing.T) {
	st := storetest.New(t)
	bus := events.NewBus()
	taskChanges := bus.Subscribe(events.EventTaskChanged)
	svc := NewService(st, bus, zerolog.Nop())
	ctx := context.Background()

	doomed := storetest.Playlist(t, st, "doomed", 60)
	kept := storetest.Playlist(t, st, "kept", 60)
	storetest.Task(t, st, models.ScheduledTask{Name: "a", Hour: 7, PlaylistID: doomed.ID, IsEnabled: true})
	storetest.Task(t, st, models.ScheduledTask{Name: "b", Hour: 8, PlaylistID: kept.ID, IsEnabled: true})

	if err := svc.DeletePlaylist(ctx, doomed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rows, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "b" {
		t.Fatalf("expected only task b to remain, got %+v", rows)
	}
	if _, err := st.GetPlaylist(ctx, doomed.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected playlist to be gone, got %v", err)
	}
	if len(taskChanges) != 1 {
		t.Fatalf("expected a task.changed event, got %d", len(taskChanges))
	}
}
