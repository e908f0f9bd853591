/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"strings"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/models"
	"gorm.io/gorm"
)

// CreateAudio registers an audio file. Probing and copying the file is done by the caller.
func (s *Store) CreateAudio(ctx context.Context, audio *models.AudioFile) error {
	if strings.TrimSpace(audio.Name) == "" || strings.TrimSpace(audio.Path) == "" {
		return apperr.Invalid("audio", "name and path are required")
	}
	if audio.Duration < 0 {
		return apperr.Invalid("duration", "must not be negative")
	}
	return s.withLock(ctx, func(tx *gorm.DB) error {
		return apperr.Store("create audio", tx.Create(audio).Error)
	})
}

// GetAudio loads an audio file by ID.
func (s *Store) GetAudio(ctx context.Context, id int64) (*models.AudioFile, error) {
	var audio models.AudioFile
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.First(&audio, id).Error
	})
	if err != nil {
		return nil, notFoundOr("get audio", "audio", id, err)
	}
	return &audio, nil
}

// CreatePlaylist creates an empty sequential playlist.
func (s *Store) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name", "playlist name is required")
	}
	pl := &models.Playlist{Name: name, PlayMode: models.PlayModeSequential}
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Create(pl).Error
	})
	if err != nil {
		return nil, apperr.Store("create playlist", err)
	}
	return pl, nil
}

// GetPlaylist loads a playlist without its items.
func (s *Store) GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error) {
	var pl models.Playlist
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.First(&pl, id).Error
	})
	if err != nil {
		return nil, notFoundOr("get playlist", "playlist", id, err)
	}
	return &pl, nil
}

// FindPlaylistByName returns the oldest playlist with the given name.
func (s *Store) FindPlaylistByName(ctx context.Context, name string) (*models.Playlist, error) {
	var pl models.Playlist
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Where("name = ?", name).Order("id ASC").First(&pl).Error
	})
	if err != nil {
		return nil, notFoundOr("find playlist", "playlist", 0, err)
	}
	return &pl, nil
}

// DeletePlaylist removes a playlist, its items, and the tasks that reference it.
func (s *Store) DeletePlaylist(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		var taskIDs []int64
		if err := tx.Model(&models.ScheduledTask{}).Where("playlist_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
			return apperr.Store("delete playlist", err)
		}
		if len(taskIDs) > 0 {
			if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.ExecutionHistory{}).Error; err != nil {
				return apperr.Store("delete playlist", err)
			}
			if err := tx.Where("id IN ?", taskIDs).Delete(&models.ScheduledTask{}).Error; err != nil {
				return apperr.Store("delete playlist", err)
			}
		}
		if err := tx.Where("playlist_id = ?", id).Delete(&models.PlaylistItem{}).Error; err != nil {
			return apperr.Store("delete playlist", err)
		}
		res := tx.Delete(&models.Playlist{}, id)
		if res.Error != nil {
			return apperr.Store("delete playlist", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("playlist", id)
		}
		return nil
	})
}

// ListPlaylists returns every playlist with its entry count and total duration.
func (s *Store) ListPlaylists(ctx context.Context) ([]models.PlaylistSummary, error) {
	var out []models.PlaylistSummary
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Table("playlists").
			Select("playlists.id, playlists.name, playlists.play_mode, " +
				"COUNT(playlist_items.id) AS item_count, " +
				"COALESCE(SUM(audio_files.duration), 0) AS duration_seconds").
			Joins("LEFT JOIN playlist_items ON playlist_items.playlist_id = playlists.id").
			Joins("LEFT JOIN audio_files ON audio_files.id = playlist_items.audio_id").
			Group("playlists.id, playlists.name, playlists.play_mode").
			Order("playlists.name ASC, playlists.id ASC").
			Scan(&out).Error
	})
	if err != nil {
		return nil, apperr.Store("list playlists", err)
	}
	return out, nil
}

// AddToPlaylist appends an audio file after the current last entry.
func (s *Store) AddToPlaylist(ctx context.Context, playlistID, audioID int64) (*models.PlaylistItem, error) {
	item := &models.PlaylistItem{PlaylistID: playlistID, AudioID: audioID}
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Playlist{}, playlistID).Error; err != nil {
			return notFoundOr("add to playlist", "playlist", playlistID, err)
		}
		if err := tx.Select("id").First(&models.AudioFile{}, audioID).Error; err != nil {
			return notFoundOr("add to playlist", "audio", audioID, err)
		}
		var next int
		if err := tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(sort_order), -1) + 1").
			Scan(&next).Error; err != nil {
			return apperr.Store("add to playlist", err)
		}
		item.SortOrder = next
		if err := tx.Create(item).Error; err != nil {
			return apperr.Store("add to playlist", err)
		}
		return apperr.Store("add to playlist", tx.Model(&models.Playlist{}).Where("id = ?", playlistID).Update("updated_at", time.Now()).Error)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveFromPlaylist deletes one playlist entry.
func (s *Store) RemoveFromPlaylist(ctx context.Context, itemID int64) error {
	return s.withLock(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&models.PlaylistItem{}, itemID)
		if res.Error != nil {
			return apperr.Store("remove from playlist", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("playlist item", itemID)
		}
		return nil
	})
}

// PlaylistEntries resolves a playlist's entries in play order: sort_order,
// then insertion order. A missing playlist is NotFound; an existing playlist
// with no entries yields an empty slice.
func (s *Store) PlaylistEntries(ctx context.Context, playlistID int64) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Playlist{}, playlistID).Error; err != nil {
			return notFoundOr("playlist entries", "playlist", playlistID, err)
		}
		err := tx.Table("playlist_items").
			Select("playlist_items.id AS item_id, audio_files.id AS audio_id, " +
				"audio_files.name AS name, audio_files.path AS path, audio_files.duration AS duration").
			Joins("JOIN audio_files ON audio_files.id = playlist_items.audio_id").
			Where("playlist_items.playlist_id = ?", playlistID).
			Order("playlist_items.sort_order ASC, playlist_items.id ASC").
			Scan(&entries).Error
		return apperr.Store("playlist entries", err)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PlaylistDurationSeconds sums the durations of every entry, duplicates included.
func (s *Store) PlaylistDurationSeconds(ctx context.Context, playlistID int64) (int, error) {
	var total int
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Table("playlist_items").
			Select("COALESCE(SUM(audio_files.duration), 0)").
			Joins("JOIN audio_files ON audio_files.id = playlist_items.audio_id").
			Where("playlist_items.playlist_id = ?", playlistID).
			Scan(&total).Error
	})
	if err != nil {
		return 0, apperr.Store("playlist duration", err)
	}
	return total, nil
}

// TrackPlay describes a completed track for bookkeeping.
type TrackPlay struct {
	Entry        models.Entry
	PlaylistID   int64
	PlaylistName string
	TaskID       *int64
	RunID        string
	At           time.Time
}

// RecordTrackPlayed increments the audio file's play count, sets its
// last_played time and appends a playback history row.
func (s *Store) RecordTrackPlayed(ctx context.Context, p TrackPlay) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.AudioFile{}).
			Where("id = ?", p.Entry.AudioID).
			Updates(map[string]any{
				"play_count":  gorm.Expr("play_count + 1"),
				"last_played": p.At,
			})
		if res.Error != nil {
			return apperr.Store("record play", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("audio", p.Entry.AudioID)
		}

		row := &models.PlaybackHistory{
			AudioID:      p.Entry.AudioID,
			AudioName:    p.Entry.Name,
			PlaylistName: p.PlaylistName,
			TaskID:       p.TaskID,
			RunID:        p.RunID,
			PlayedAt:     p.At,
		}
		if p.PlaylistID != 0 {
			id := p.PlaylistID
			row.PlaylistID = &id
		}
		return apperr.Store("record play", tx.Create(row).Error)
	})
}

// RecentPlays returns the newest playback history rows.
func (s *Store) RecentPlays(ctx context.Context, limit int) ([]models.PlaybackHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.PlaybackHistory
	err := s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Order("played_at DESC, id DESC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, apperr.Store("recent plays", err)
	}
	return rows, nil
}
