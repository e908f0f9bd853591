/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus onto NATS so that home
// automation systems can react to alarms and playback changes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // events publish to <prefix>.<event_type>
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "dawnchorus.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// publisher is the subset of *nats.Conn the forwarder needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Forwarder copies every bus event to a NATS subject.
type Forwarder struct {
	bus    *events.Bus
	conn   publisher
	close  func()
	prefix string
	nodeID string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[events.EventType]events.Subscriber
}

// natsMessage is the JSON body published for each event.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NewNATSForwarder connects to NATS. Reconnection is handled by the client.
func NewNATSForwarder(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) (*Forwarder, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name("dawnchorus"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", cfg.URL).Str("subject_prefix", cfg.SubjectPrefix).Msg("NATS event forwarding enabled")

	f := newForwarder(bus, conn, cfg.SubjectPrefix, logger)
	f.close = func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	return f, nil
}

func newForwarder(bus *events.Bus, conn publisher, prefix string, logger zerolog.Logger) *Forwarder {
	if prefix == "" {
		prefix = DefaultNATSConfig().SubjectPrefix
	}
	return &Forwarder{
		bus:    bus,
		conn:   conn,
		close:  func() {},
		prefix: prefix,
		nodeID: generateNodeID(),
		logger: logger,
		subs:   make(map[events.EventType]events.Subscriber),
	}
}

// Run forwards events until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	var wg sync.WaitGroup
	f.mu.Lock()
	for _, et := range events.AllTypes {
		sub := f.bus.Subscribe(et)
		f.subs[et] = sub
		wg.Add(1)
		go func(et events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					f.forward(et, payload)
				}
			}
		}(et, sub)
	}
	f.mu.Unlock()

	<-ctx.Done()
	f.mu.Lock()
	for et, sub := range f.subs {
		f.bus.Unsubscribe(et, sub)
		delete(f.subs, et)
	}
	f.mu.Unlock()
	wg.Wait()
}

func (f *Forwarder) forward(et events.EventType, payload events.Payload) {
	data, err := marshalNATSMessage(et, payload, f.nodeID)
	if err != nil {
		telemetry.EventsForwardedTotal.WithLabelValues("marshal_error").Inc()
		f.logger.Debug().Err(err).Str("event", string(et)).Msg("marshal event failed")
		return
	}
	if err := f.conn.Publish(f.Subject(et), data); err != nil {
		telemetry.EventsForwardedTotal.WithLabelValues("error").Inc()
		f.logger.Debug().Err(err).Str("event", string(et)).Msg("publish to NATS failed")
		return
	}
	telemetry.EventsForwardedTotal.WithLabelValues("ok").Inc()
}

// Subject returns the NATS subject for an event type.
func (f *Forwarder) Subject(et events.EventType) string {
	return f.prefix + "." + string(et)
}

// Close drains the NATS connection.
func (f *Forwarder) Close() error {
	f.close()
	return nil
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dawnchorus"
	}
	return host + "-" + uuid.NewString()[:8]
}
