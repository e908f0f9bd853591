/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Null is a silent device. It tracks state so the API reports something
// sensible on hosts without audio output.
type Null struct {
	logger zerolog.Logger

	mu      sync.Mutex
	path    string
	playing bool
	paused  bool
	level   float32
}

// NewNull creates a silent device.
func NewNull(logger zerolog.Logger) *Null {
	return &Null{
		logger: logger.With().Str("component", "audio").Str("backend", "null").Logger(),
		level:  1,
	}
}

func (n *Null) Play(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.playing = true
	n.paused = false
	n.logger.Debug().Str("path", path).Msg("play")
	return nil
}

func (n *Null) Pause(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.playing {
		n.paused = true
	}
	return nil
}

func (n *Null) Resume(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = false
	return nil
}

func (n *Null) Stop(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = false
	n.paused = false
	n.path = ""
	return nil
}

func (n *Null) SetVolume(_ context.Context, level float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.level = clampLevel(level)
	return nil
}

func (n *Null) IsPlaying(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.playing && !n.paused, nil
}

// Volume returns the last level set.
func (n *Null) Volume() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level
}

// Loaded returns the path of the current file.
func (n *Null) Loaded() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *Null) Close() error { return nil }
