/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storetest builds migrated in-memory stores and seed data for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/friendsincode/dawnchorus/internal/db"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a fresh in-memory SQLite database, migrates it and wraps it in a Store.
func New(t testing.TB) *store.Store {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(database, zerolog.Nop())
}

// Audio registers an audio file with the given duration in seconds.
func Audio(t testing.TB, st *store.Store, name string, seconds int) *models.AudioFile {
	t.Helper()
	a := &models.AudioFile{Name: name, Path: "/library/" + name + ".mp3", Format: "mp3", Duration: seconds}
	if err := st.CreateAudio(context.Background(), a); err != nil {
		t.Fatalf("create audio %s: %v", name, err)
	}
	return a
}

// Playlist creates a playlist holding one entry per duration, in order.
func Playlist(t testing.TB, st *store.Store, name string, durations ...int) *models.Playlist {
	t.Helper()
	ctx := context.Background()
	pl, err := st.CreatePlaylist(ctx, name)
	if err != nil {
		t.Fatalf("create playlist %s: %v", name, err)
	}
	for i, d := range durations {
		a := Audio(t, st, name+"-track-"+string(rune('a'+i)), d)
		if _, err := st.AddToPlaylist(ctx, pl.ID, a.ID); err != nil {
			t.Fatalf("add to playlist %s: %v", name, err)
		}
	}
	return pl
}

// Task inserts a task. An empty name, mode or volume gets a default;
// IsEnabled is taken as given.
func Task(t testing.TB, st *store.Store, task models.ScheduledTask) *models.ScheduledTask {
	t.Helper()
	if task.Name == "" {
		task.Name = "task"
	}
	if task.RepeatMode == "" {
		task.RepeatMode = models.RepeatDaily
	}
	if task.Volume == 0 {
		task.Volume = 50
	}
	if err := st.CreateTask(context.Background(), &task); err != nil {
		t.Fatalf("create task %s: %v", task.Name, err)
	}
	return &task
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
