/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventTaskFired)
	other := bus.Subscribe(EventTaskFailed)

	bus.Publish(EventTaskFired, Payload{"task_id": int64(3)})

	select {
	case p := <-sub:
		if p["task_id"] != int64(3) || p["type"] != "task.fired" {
			t.Fatalf("unexpected payload: %v", p)
		}
	default:
		t.Fatal("expected payload to be delivered")
	}
	select {
	case p := <-other:
		t.Fatalf("unexpected delivery to other type: %v", p)
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNowPlaying)
	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventNowPlaying, nil)
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full buffer, got %d of %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlaybackStopped)
	bus.Unsubscribe(EventPlaybackStopped, sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected channel to be closed")
	}
	// Publishing after unsubscribe must not panic.
	bus.Publish(EventPlaybackStopped, nil)
	bus.Unsubscribe(EventPlaybackStopped, sub)
}
