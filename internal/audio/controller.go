/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session identifies one playback run. A session stays current until another
// one begins or playback is stopped.
type Session struct {
	Generation uint64
	RunID      string
}

// State is a snapshot of the controller for the API.
type State struct {
	Playing      bool           `json:"playing"`
	Paused       bool           `json:"paused"`
	PlaylistID   *int64         `json:"playlist_id,omitempty"`
	PlaylistName string         `json:"playlist_name,omitempty"`
	AudioID      *int64         `json:"audio_id,omitempty"`
	AudioName    string         `json:"audio_name,omitempty"`
	Volume       int            `json:"volume"`
	Queue        []models.Entry `json:"queue"`
	Index        int            `json:"index"`
	AutoPlay     bool           `json:"auto_play"`
	Generation   uint64         `json:"generation"`
	RunID        string         `json:"run_id,omitempty"`
	// OutputActive is what the device itself reports. Nil when the device
	// was not asked or could not answer.
	OutputActive *bool `json:"output_active,omitempty"`
}

// Controller owns the process-wide device. Its mutex is held for exactly one
// device call at a time and never across waits, so the API can pause or stop
// playback while a run is sleeping between tracks.
type Controller struct {
	device Device
	bus    events.Publisher
	logger zerolog.Logger

	mu           sync.Mutex
	generation   uint64
	runID        string
	playlistID   *int64
	playlistName string
	queue        []models.Entry
	index        int
	autoPlay     bool
	active       bool
	paused       bool
	volume       int
}

// NewController wraps device. volume is the initial level in percent.
func NewController(device Device, volume int, bus events.Publisher, logger zerolog.Logger) *Controller {
	return &Controller{
		device: device,
		bus:    bus,
		logger: logger.With().Str("component", "controller").Logger(),
		volume: volume,
		index:  -1,
	}
}

// Begin starts a new session, replacing the queue and preempting any run in
// progress. An empty runID is replaced by a fresh one.
func (c *Controller) Begin(playlist models.Playlist, queue []models.Entry, volume int, autoPlay bool, runID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if runID == "" {
		runID = uuid.NewString()
	}
	c.generation++
	c.runID = runID
	c.volume = volume
	id := playlist.ID
	c.playlistID = &id
	c.playlistName = playlist.Name
	c.queue = append([]models.Entry(nil), queue...)
	c.index = -1
	c.autoPlay = autoPlay
	c.active = true
	c.paused = false

	telemetry.PlaybackGeneration.Set(float64(c.generation))
	telemetry.PlaybackActive.Set(1)
	return Session{Generation: c.generation, RunID: c.runID}
}

// IsCurrent reports whether s is still the latest session.
func (c *Controller) IsCurrent(s Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.generation == s.Generation
}

// PlayIndex loads queue[index] for session s.
func (c *Controller) PlayIndex(ctx context.Context, s Session, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.generation != s.Generation {
		return apperr.ErrSuperseded
	}
	if index < 0 || index >= len(c.queue) {
		return apperr.Invalid("index", "outside the queue")
	}
	entry := c.queue[index]
	if err := c.device.Play(ctx, entry.Path); err != nil {
		return deviceErr("play", err)
	}
	c.index = index
	c.paused = false
	return nil
}

// SetLevel sets the device level for session s without changing the
// configured volume.
func (c *Controller) SetLevel(ctx context.Context, s Session, level float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.generation != s.Generation {
		return apperr.ErrSuperseded
	}
	if err := c.device.SetVolume(ctx, level); err != nil {
		return deviceErr("set_volume", err)
	}
	return nil
}

// Finish ends session s if it is still current. The device is left alone:
// the last track plays out on its own.
func (c *Controller) Finish(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == s.Generation {
		c.active = false
		c.autoPlay = false
		telemetry.PlaybackActive.Set(0)
	}
}

// Stop halts the device and invalidates the running session.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.active = false
	c.paused = false
	c.autoPlay = false
	c.index = -1
	telemetry.PlaybackGeneration.Set(float64(c.generation))
	telemetry.PlaybackActive.Set(0)

	if err := c.device.Stop(ctx); err != nil {
		return deviceErr("stop", err)
	}
	c.publish(events.EventPlaybackStopped, events.Payload{"generation": c.generation})
	return nil
}

func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.device.Pause(ctx); err != nil {
		return deviceErr("pause", err)
	}
	c.paused = true
	c.publish(events.EventPlaybackPaused, nil)
	return nil
}

func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.device.Resume(ctx); err != nil {
		return deviceErr("resume", err)
	}
	c.paused = false
	c.publish(events.EventPlaybackResumed, nil)
	return nil
}

// SetVolume sets the output volume in percent.
func (c *Controller) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return apperr.Invalid("volume", "must be between 0 and 100")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.device.SetVolume(ctx, float32(volume)/100); err != nil {
		return deviceErr("set_volume", err)
	}
	c.volume = volume
	c.publish(events.EventVolumeChanged, events.Payload{"volume": volume})
	return nil
}

// Volume returns the current target volume in percent.
func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Snapshot is State plus the device's own view of whether audio is coming
// out. A device error is logged and leaves OutputActive unset.
func (c *Controller) Snapshot(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stateLocked()
	playing, err := c.device.IsPlaying(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("device state unavailable")
		return st
	}
	st.OutputActive = &playing
	return st
}

func (c *Controller) stateLocked() State {
	st := State{
		Playing:      c.active && !c.paused,
		Paused:       c.paused,
		PlaylistName: c.playlistName,
		Volume:       c.volume,
		Queue:        append([]models.Entry{}, c.queue...),
		Index:        c.index,
		AutoPlay:     c.autoPlay,
		Generation:   c.generation,
		RunID:        c.runID,
	}
	if c.playlistID != nil {
		id := *c.playlistID
		st.PlaylistID = &id
	}
	if c.index >= 0 && c.index < len(c.queue) {
		id := c.queue[c.index].AudioID
		st.AudioID = &id
		st.AudioName = c.queue[c.index].Name
	}
	return st
}

// Close releases the device.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.active = false
	return c.device.Close()
}

func (c *Controller) publish(et events.EventType, payload events.Payload) {
	if c.bus != nil {
		c.bus.Publish(et, payload)
	}
}

func deviceErr(op string, err error) error {
	if errors.Is(err, apperr.ErrDeviceUnavailable) {
		return err
	}
	telemetry.DeviceErrorsTotal.WithLabelValues(op).Inc()
	return apperr.Device(op, err)
}
