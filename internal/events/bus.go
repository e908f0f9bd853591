/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Scheduler
	EventTaskFired     EventType = "task.fired"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"

	// Playback
	EventPlaybackStarted EventType = "playback.started"
	EventNowPlaying      EventType = "playback.now_playing"
	EventTrackCompleted  EventType = "playback.track_completed"
	EventPlaybackStopped EventType = "playback.stopped"
	EventPlaybackPaused  EventType = "playback.paused"
	EventPlaybackResumed EventType = "playback.resumed"
	EventVolumeChanged   EventType = "playback.volume"

	// Cache invalidation
	EventTaskChanged     EventType = "cache.task_changed"
	EventPlaylistChanged EventType = "cache.playlist_changed"
)

// AllTypes lists every event type, for consumers that mirror the whole bus.
var AllTypes = []EventType{
	EventTaskFired,
	EventTaskCompleted,
	EventTaskFailed,
	EventPlaybackStarted,
	EventNowPlaying,
	EventTrackCompleted,
	EventPlaybackStopped,
	EventPlaybackPaused,
	EventPlaybackResumed,
	EventVolumeChanged,
	EventTaskChanged,
	EventPlaylistChanged,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. The event type is added to the
// payload under "type".
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = string(eventType)
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
