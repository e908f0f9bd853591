/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = make(map[string][][]byte)
	}
	c.messages[subject] = append(c.messages[subject], data)
	return nil
}

func (c *fakeConn) count(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[subject])
}

func (c *fakeConn) first(subject string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[subject][0]
}

func TestForwarderPublishesBusEvents(t *testing.T) {
	bus := events.NewBus()
	conn := &fakeConn{}
	f := newForwarder(bus, conn, "alarms", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	subject := f.Subject(events.EventTaskFired)
	if subject != "alarms.task.fired" {
		t.Fatalf("unexpected subject %q", subject)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.count(subject) == 0 && time.Now().Before(deadline) {
		bus.Publish(events.EventTaskFired, events.Payload{"task_id": 7})
		time.Sleep(10 * time.Millisecond)
	}
	if conn.count(subject) == 0 {
		t.Fatal("expected event to be forwarded")
	}

	msg, err := unmarshalNATSMessage(conn.first(subject))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventTaskFired || msg.MessageID == "" || msg.NodeID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Payload["task_id"] != float64(7) {
		t.Fatalf("unexpected payload: %v", msg.Payload)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestRedisForwarderReportsUnreachableServer(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	f, err := NewRedisForwarder(cfg, events.NewBus(), zerolog.Nop())
	if err == nil {
		_ = f.Close()
		t.Fatal("expected an error for an unreachable redis server")
	}
}
