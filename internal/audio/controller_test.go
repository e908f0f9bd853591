/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dawnchorus/internal/models"
)

// deafDevice plays like Null but cannot report its state.
type deafDevice struct {
	*Null
}

func (deafDevice) IsPlaying(context.Context) (bool, error) {
	return false, errors.New("ipc closed")
}

func TestSnapshotAsksDevice(t *testing.T) {
	ctx := context.Background()
	null := NewNull(zerolog.Nop())
	c := NewController(null, 50, nil, zerolog.Nop())

	if st := c.Snapshot(ctx); st.OutputActive == nil || *st.OutputActive {
		t.Fatalf("expected idle device, got %+v", st.OutputActive)
	}

	queue := []models.Entry{{AudioID: 1, Name: "birds", Path: "/library/birds.mp3", Duration: 60}}
	s := c.Begin(models.Playlist{ID: 3, Name: "wake"}, queue, 50, true, "")
	if err := c.PlayIndex(ctx, s, 0); err != nil {
		t.Fatalf("play: %v", err)
	}
	st := c.Snapshot(ctx)
	if st.OutputActive == nil || !*st.OutputActive || !st.Playing {
		t.Fatalf("expected audible playback, got %+v", st)
	}
	if st.AudioName != "birds" || st.PlaylistName != "wake" {
		t.Fatalf("unexpected snapshot %+v", st)
	}

	// The queue still claims to be playing after the track ends on its own.
	_ = null.Stop(ctx)
	st = c.Snapshot(ctx)
	if !st.Playing || st.OutputActive == nil || *st.OutputActive {
		t.Fatalf("expected queue active but device silent, got %+v", st)
	}
}

func TestSnapshotDeviceError(t *testing.T) {
	c := NewController(deafDevice{NewNull(zerolog.Nop())}, 50, nil, zerolog.Nop())
	if st := c.Snapshot(context.Background()); st.OutputActive != nil {
		t.Fatalf("expected no output state, got %v", *st.OutputActive)
	}
}
