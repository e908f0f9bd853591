/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout sequences playlists onto the audio device.
package playout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/audio"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const fadeStep = time.Second

// ErrNothingQueued is returned by Next and Previous when no playlist has been
// loaded.
var ErrNothingQueued = errors.New("nothing queued")

// Library is the store surface the orchestrator needs.
type Library interface {
	GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error)
	PlaylistEntries(ctx context.Context, playlistID int64) ([]models.Entry, error)
	RecordTrackPlayed(ctx context.Context, p store.TrackPlay) error
}

// Options tune one PlayPlaylist call.
type Options struct {
	// TaskID is recorded on playback history rows.
	TaskID *int64
	// RunID ties the session to an execution history row. Empty picks a new one.
	RunID string
}

// Orchestrator plays playlists one entry at a time through the controller.
// Each run holds a session; starting another run, or stopping playback,
// supersedes it and the older run ends at its next check without touching
// the device or the play counts.
type Orchestrator struct {
	lib           Library
	ctrl          *audio.Controller
	bus           events.Publisher
	clock         Clock
	defaultVolume int
	logger        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. defaultVolume applies to manual playback.
func New(lib Library, ctrl *audio.Controller, bus events.Publisher, clock Clock, defaultVolume int, logger zerolog.Logger) *Orchestrator {
	if clock == nil {
		clock = WallClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		lib:           lib,
		ctrl:          ctrl,
		bus:           bus,
		clock:         clock,
		defaultVolume: defaultVolume,
		logger:        logger.With().Str("component", "playout").Logger(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Controller exposes the device controller for transport controls.
func (o *Orchestrator) Controller() *audio.Controller {
	return o.ctrl
}

// PlayPlaylist plays playlistID from the top and returns when the run ends.
// volume is in percent; fadeIn is the ramp length in seconds applied to every
// entry. It returns apperr.ErrSuperseded if another run took over.
func (o *Orchestrator) PlayPlaylist(ctx context.Context, playlistID int64, volume, fadeIn int, opts Options) error {
	ctx, span := telemetry.StartSpan(ctx, "playout", "playout.play_playlist")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"playlist.id": playlistID,
		"volume":      volume,
		"fade_in":     fadeIn,
	})

	pl, entries, err := o.resolve(ctx, playlistID)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	sess := o.ctrl.Begin(*pl, entries, volume, true, opts.RunID)
	o.announce(pl, sess, opts.TaskID)

	run := runState{pl: pl, entries: entries, sess: sess, volume: volume, fade: fadeIn, taskID: opts.TaskID}
	err = o.sequence(ctx, run, 0, len(entries))
	o.finish(span, run, err)
	return err
}

// PlayNow starts playlistID at the default volume without a fade and returns
// once the first entry has started. With autoAdvance the rest of the
// playlist follows in the background; otherwise only the first entry plays.
func (o *Orchestrator) PlayNow(ctx context.Context, playlistID int64, autoAdvance bool) (audio.State, error) {
	pl, entries, err := o.resolve(ctx, playlistID)
	if err != nil {
		return audio.State{}, err
	}

	sess := o.ctrl.Begin(*pl, entries, o.defaultVolume, autoAdvance, "")
	o.announce(pl, sess, nil)

	last := 1
	if autoAdvance {
		last = len(entries)
	}
	run := runState{pl: pl, entries: entries, sess: sess, volume: o.defaultVolume}
	if err := o.startFrom(ctx, run, 0, last); err != nil {
		return audio.State{}, err
	}
	return o.ctrl.State(), nil
}

// Next skips to the following entry of the current queue. Skipping past the
// last entry stops playback.
func (o *Orchestrator) Next(ctx context.Context) (audio.State, error) {
	st := o.ctrl.State()
	if st.PlaylistID == nil || len(st.Queue) == 0 {
		return st, ErrNothingQueued
	}
	target := st.Index + 1
	if target >= len(st.Queue) {
		if err := o.ctrl.Stop(ctx); err != nil {
			return st, err
		}
		return o.ctrl.State(), nil
	}
	return o.jump(ctx, st, target)
}

// Previous restarts the preceding entry, or the first one when already there.
func (o *Orchestrator) Previous(ctx context.Context) (audio.State, error) {
	st := o.ctrl.State()
	if st.PlaylistID == nil || len(st.Queue) == 0 {
		return st, ErrNothingQueued
	}
	target := st.Index - 1
	if target < 0 {
		target = 0
	}
	return o.jump(ctx, st, target)
}

func (o *Orchestrator) jump(ctx context.Context, st audio.State, target int) (audio.State, error) {
	pl := &models.Playlist{ID: *st.PlaylistID, Name: st.PlaylistName}
	sess := o.ctrl.Begin(*pl, st.Queue, st.Volume, st.AutoPlay, "")

	last := target + 1
	if st.AutoPlay {
		last = len(st.Queue)
	}
	run := runState{pl: pl, entries: st.Queue, sess: sess, volume: st.Volume}
	if err := o.startFrom(ctx, run, target, last); err != nil {
		return audio.State{}, err
	}
	return o.ctrl.State(), nil
}

// startFrom starts entry index synchronously and hands the rest of the run to
// a background goroutine bound to the orchestrator's lifetime.
func (o *Orchestrator) startFrom(ctx context.Context, run runState, index, last int) error {
	started, err := o.startEntry(ctx, run, index)
	if err != nil {
		o.finish(trace.SpanFromContext(ctx), run, err)
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.awaitEntry(o.ctx, run, index, started)
		if err == nil {
			err = o.sequence(o.ctx, run, index+1, last)
		}
		o.finish(trace.SpanFromContext(o.ctx), run, err)
	}()
	return nil
}

// Close cancels background runs and waits for them.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

type runState struct {
	pl      *models.Playlist
	entries []models.Entry
	sess    audio.Session
	volume  int
	fade    int
	taskID  *int64
}

func (o *Orchestrator) resolve(ctx context.Context, playlistID int64) (*models.Playlist, []models.Entry, error) {
	pl, err := o.lib.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := o.lib.PlaylistEntries(ctx, playlistID)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("playlist %d: %w", playlistID, apperr.ErrEmptyPlaylist)
	}
	return pl, entries, nil
}

func (o *Orchestrator) sequence(ctx context.Context, run runState, from, to int) error {
	for i := from; i < to; i++ {
		started, err := o.startEntry(ctx, run, i)
		if err != nil {
			return err
		}
		if err := o.awaitEntry(ctx, run, i, started); err != nil {
			return err
		}
	}
	return nil
}

// startEntry loads entry i and, with a fade, ramps the level up one step per
// second. It returns the time playback began.
func (o *Orchestrator) startEntry(ctx context.Context, run runState, i int) (time.Time, error) {
	entry := run.entries[i]

	if run.fade <= 0 {
		if err := o.ctrl.SetLevel(ctx, run.sess, float32(run.volume)/100); err != nil {
			return time.Time{}, err
		}
		if err := o.ctrl.PlayIndex(ctx, run.sess, i); err != nil {
			return time.Time{}, err
		}
		started := o.clock.Now()
		o.nowPlaying(run, i)
		return started, nil
	}

	if err := o.ctrl.SetLevel(ctx, run.sess, 0); err != nil {
		return time.Time{}, err
	}
	if err := o.ctrl.PlayIndex(ctx, run.sess, i); err != nil {
		return time.Time{}, err
	}
	started := o.clock.Now()
	o.nowPlaying(run, i)

	for k := 1; k <= run.fade; k++ {
		if err := o.clock.Sleep(ctx, fadeStep); err != nil {
			return started, err
		}
		level := float32(run.volume) * float32(k) / float32(run.fade) / 100
		if err := o.ctrl.SetLevel(ctx, run.sess, level); err != nil {
			return started, err
		}
		telemetry.PlaybackFadeStepsTotal.Inc()
	}

	o.logger.Debug().
		Int64("audio_id", entry.AudioID).
		Int("fade_in", run.fade).
		Int("volume", run.volume).
		Msg("fade-in complete")
	return started, nil
}

// awaitEntry waits out the remainder of entry i and books the play unless the
// session was superseded meanwhile.
func (o *Orchestrator) awaitEntry(ctx context.Context, run runState, i int, started time.Time) error {
	entry := run.entries[i]
	remaining := time.Duration(entry.Duration)*time.Second - o.clock.Now().Sub(started)
	if err := o.clock.Sleep(ctx, remaining); err != nil {
		return err
	}
	if !o.ctrl.IsCurrent(run.sess) {
		return apperr.ErrSuperseded
	}

	err := o.lib.RecordTrackPlayed(ctx, store.TrackPlay{
		Entry:        entry,
		PlaylistID:   run.pl.ID,
		PlaylistName: run.pl.Name,
		TaskID:       run.taskID,
		RunID:        run.sess.RunID,
		At:           o.clock.Now(),
	})
	if err != nil {
		o.logger.Warn().Err(err).Int64("audio_id", entry.AudioID).Msg("failed to record play")
	}
	telemetry.PlaybackTracksTotal.Inc()

	o.publish(events.EventTrackCompleted, events.Payload{
		"run_id":      run.sess.RunID,
		"playlist_id": run.pl.ID,
		"audio_id":    entry.AudioID,
		"name":        entry.Name,
		"index":       i,
	})
	return nil
}

func (o *Orchestrator) finish(span trace.Span, run runState, err error) {
	logger := o.logger.With().Str("run_id", run.sess.RunID).Int64("playlist_id", run.pl.ID).Logger()
	switch {
	case err == nil:
		o.ctrl.Finish(run.sess)
		telemetry.PlaybackRunsTotal.WithLabelValues("completed").Inc()
		logger.Info().Msg("playlist finished")
	case errors.Is(err, apperr.ErrSuperseded):
		telemetry.PlaybackRunsTotal.WithLabelValues("superseded").Inc()
		logger.Info().Msg("playlist superseded")
	default:
		o.ctrl.Finish(run.sess)
		telemetry.PlaybackRunsTotal.WithLabelValues("failed").Inc()
		telemetry.RecordError(span, err)
		logger.Error().Err(err).Msg("playlist aborted")
	}
}

func (o *Orchestrator) announce(pl *models.Playlist, sess audio.Session, taskID *int64) {
	payload := events.Payload{
		"run_id":        sess.RunID,
		"generation":    sess.Generation,
		"playlist_id":   pl.ID,
		"playlist_name": pl.Name,
	}
	if taskID != nil {
		payload["task_id"] = *taskID
	}
	o.publish(events.EventPlaybackStarted, payload)
}

func (o *Orchestrator) nowPlaying(run runState, i int) {
	entry := run.entries[i]
	o.publish(events.EventNowPlaying, events.Payload{
		"run_id":      run.sess.RunID,
		"playlist_id": run.pl.ID,
		"audio_id":    entry.AudioID,
		"name":        entry.Name,
		"index":       i,
	})
}

func (o *Orchestrator) publish(et events.EventType, payload events.Payload) {
	if o.bus != nil {
		o.bus.Publish(et, payload)
	}
}
