/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/rs/zerolog"
)

type countingSource struct {
	calls   int
	seconds int
	err     error
}

func (s *countingSource) PlaylistDurationSeconds(ctx context.Context, playlistID int64) (int, error) {
	s.calls++
	return s.seconds, s.err
}

func TestNewWithoutAddressIsDisabled(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("expected cache without address to be disabled")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close disabled cache: %v", err)
	}
}

func TestPlaylistDurationsFallsThroughWhenDisabled(t *testing.T) {
	src := &countingSource{seconds: 125}
	durations := NewPlaylistDurations(Disabled(zerolog.Nop()), src)

	for i := 0; i < 3; i++ {
		got, err := durations.PlaylistDurationSeconds(context.Background(), 4)
		if err != nil {
			t.Fatalf("duration: %v", err)
		}
		if got != 125 {
			t.Fatalf("expected 125, got %d", got)
		}
	}
	if src.calls != 3 {
		t.Fatalf("expected every lookup to reach the source, got %d calls", src.calls)
	}

	durations.Invalidate(context.Background(), 4)
	durations.InvalidateAll(context.Background())
}

func TestPlaylistDurationsPropagatesSourceError(t *testing.T) {
	boom := errors.New("db down")
	durations := NewPlaylistDurations(Disabled(zerolog.Nop()), &countingSource{err: boom})
	if _, err := durations.PlaylistDurationSeconds(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestPlaylistDurationKey(t *testing.T) {
	if got := playlistDurationKey(42); got != "dawnchorus:cache:playlist_duration:42" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	bus := events.NewBus()
	durations := NewPlaylistDurations(Disabled(zerolog.Nop()), &countingSource{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		durations.Watch(ctx, bus)
		close(done)
	}()

	bus.Publish(events.EventPlaylistChanged, events.Payload{"playlist_id": int64(3)})
	bus.Publish(events.EventPlaylistChanged, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
