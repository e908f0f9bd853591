/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio drives the single local audio output.
package audio

import (
	"context"
	"fmt"

	"github.com/friendsincode/dawnchorus/internal/config"
	"github.com/rs/zerolog"
)

// Device is the process-wide audio output. Implementations are not required
// to be safe for concurrent use; the playback controller serialises calls.
type Device interface {
	// Play replaces whatever is loaded with the file at path and starts it.
	Play(ctx context.Context, path string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	// SetVolume sets the output level in [0, 1].
	SetVolume(ctx context.Context, level float32) error
	IsPlaying(ctx context.Context) (bool, error)
	Close() error
}

// New builds the device selected by configuration.
func New(cfg *config.Config, logger zerolog.Logger) (Device, error) {
	switch cfg.AudioBackend {
	case config.AudioMPV:
		return NewMPV(MPVConfig{Bin: cfg.MPVBin, Socket: cfg.MPVSocket}, logger), nil
	case config.AudioNull:
		return NewNull(logger), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", cfg.AudioBackend)
	}
}

func clampLevel(level float32) float32 {
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
