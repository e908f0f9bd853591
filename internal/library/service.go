/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library manages audio files and playlists.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/rs/zerolog"
)

// Service applies library changes and announces them on the bus.
type Service struct {
	store  *store.Store
	bus    events.Publisher
	logger zerolog.Logger
}

// NewService creates a library service.
func NewService(st *store.Store, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{store: st, bus: bus, logger: logger.With().Str("component", "library").Logger()}
}

// RegisterAudio records an audio file. Size and format are read from the
// file when it is present on this host.
func (s *Service) RegisterAudio(ctx context.Context, name, path string, durationSeconds int) (*models.AudioFile, error) {
	if durationSeconds < 0 {
		return nil, apperr.Invalid("duration", "must not be negative")
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	audio := &models.AudioFile{
		Name:     name,
		Path:     path,
		Format:   strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		Duration: durationSeconds,
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		audio.FileSize = info.Size()
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn().Str("path", path).Msg("registering audio file that does not exist on this host")
	default:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := s.store.CreateAudio(ctx, audio); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("audio_id", audio.ID).Str("path", path).Int("duration", durationSeconds).Msg("audio registered")
	return audio, nil
}

// CreatePlaylist creates an empty playlist.
func (s *Service) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	pl, err := s.store.CreatePlaylist(ctx, name)
	if err != nil {
		return nil, err
	}
	s.changed(pl.ID)
	return pl, nil
}

// AddItem appends audioID to the end of a playlist.
func (s *Service) AddItem(ctx context.Context, playlistID, audioID int64) (*models.PlaylistItem, error) {
	item, err := s.store.AddToPlaylist(ctx, playlistID, audioID)
	if err != nil {
		return nil, err
	}
	s.changed(playlistID)
	return item, nil
}

// RemoveItem deletes one entry from a playlist.
func (s *Service) RemoveItem(ctx context.Context, playlistID, itemID int64) error {
	if err := s.store.RemoveFromPlaylist(ctx, itemID); err != nil {
		return err
	}
	s.changed(playlistID)
	return nil
}

// DeletePlaylist removes a playlist along with the tasks that play it.
func (s *Service) DeletePlaylist(ctx context.Context, id int64) error {
	if err := s.store.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	s.changed(id)
	s.publish(events.EventTaskChanged, events.Payload{"playlist_id": id})
	s.logger.Info().Int64("playlist_id", id).Msg("playlist deleted")
	return nil
}

func (s *Service) changed(playlistID int64) {
	s.publish(events.EventPlaylistChanged, events.Payload{"playlist_id": playlistID})
}

func (s *Service) publish(et events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(et, payload)
	}
}
