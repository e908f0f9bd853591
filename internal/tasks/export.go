/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"gopkg.in/yaml.v3"
)

// exportVersion is bumped when the document layout changes.
const exportVersion = 1

// Document is the YAML backup format. Playlists are referenced by name so a
// document can be imported into a database with different IDs.
type Document struct {
	Version    int          `yaml:"version"`
	ExportedAt time.Time    `yaml:"exported_at"`
	Tasks      []TaskRecord `yaml:"tasks"`
}

// TaskRecord is one task in a Document.
type TaskRecord struct {
	Name            string `yaml:"name"`
	Time            string `yaml:"time"`
	Repeat          string `yaml:"repeat"`
	Days            []int  `yaml:"days,omitempty"`
	Playlist        string `yaml:"playlist"`
	Volume          int    `yaml:"volume"`
	FadeIn          int    `yaml:"fade_in,omitempty"`
	DurationMinutes *int   `yaml:"duration_minutes,omitempty"`
	Enabled         bool   `yaml:"enabled"`
	Priority        int    `yaml:"priority,omitempty"`
}

// ImportResult summarises an Import.
type ImportResult struct {
	Created int      `json:"created"`
	Skipped []string `json:"skipped,omitempty"`
}

// Export writes every task as YAML.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}

	doc := Document{Version: exportVersion, ExportedAt: time.Now().UTC(), Tasks: make([]TaskRecord, 0, len(rows))}
	for _, row := range rows {
		doc.Tasks = append(doc.Tasks, TaskRecord{
			Name:            row.Name,
			Time:            fmt.Sprintf("%02d:%02d", row.Hour, row.Minute),
			Repeat:          string(row.RepeatMode),
			Days:            row.CustomDays.Days(),
			Playlist:        row.PlaylistName,
			Volume:          row.Volume,
			FadeIn:          row.FadeInSeconds,
			DurationMinutes: row.DurationMinutes,
			Enabled:         row.IsEnabled,
			Priority:        row.Priority,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return enc.Close()
}

// Import creates the tasks of a YAML document. Tasks whose playlist does not
// exist are skipped; any other invalid task aborts the import before it
// reaches that task, leaving earlier ones in place.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return ImportResult{}, apperr.Invalid("document", err.Error())
	}
	if doc.Version != exportVersion {
		return ImportResult{}, apperr.Invalid("version", fmt.Sprintf("unsupported version %d", doc.Version))
	}

	var res ImportResult
	for i, rec := range doc.Tasks {
		pl, err := s.store.FindPlaylistByName(ctx, rec.Playlist)
		if errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn().Str("task", rec.Name).Str("playlist", rec.Playlist).Msg("skipping task with unknown playlist")
			res.Skipped = append(res.Skipped, rec.Name)
			continue
		}
		if err != nil {
			return res, err
		}

		var hour, minute int
		if _, err := fmt.Sscanf(rec.Time, "%d:%d", &hour, &minute); err != nil {
			return res, apperr.Invalid("time", fmt.Sprintf("task %d: %q is not HH:MM", i+1, rec.Time))
		}

		volume, enabled := rec.Volume, rec.Enabled
		if _, err := s.Create(ctx, Input{
			Name:            rec.Name,
			Hour:            hour,
			Minute:          minute,
			RepeatMode:      models.RepeatMode(rec.Repeat),
			CustomDays:      rec.Days,
			PlaylistID:      pl.ID,
			Volume:          &volume,
			FadeInSeconds:   rec.FadeIn,
			DurationMinutes: rec.DurationMinutes,
			IsEnabled:       &enabled,
			Priority:        rec.Priority,
		}); err != nil {
			return res, fmt.Errorf("task %d (%s): %w", i+1, rec.Name, err)
		}
		res.Created++
	}
	return res, nil
}
