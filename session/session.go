// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session implements the long-lived per-client session: it owns
// subscriptions, tracks in-flight QoS exchanges, queues messages while the
// client is offline and feeds the connection's Deliver entry point.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/protocol"
)

// maxOfflineQueue bounds messages buffered for a disconnected client.
const maxOfflineQueue = 1000

// ErrInflightFull is returned when the outbound in-flight window is exhausted.
var ErrInflightFull = errors.New("no free packet identifier")

type outState int

const (
	statePublished outState = iota
	stateRelReceived
)

type outMessage struct {
	msg   *broker.Message
	state outState
}

// Session is the per-client session state. One session may outlive many
// connections; attach rebinds it to the live connection's event sink.
type Session struct {
	id     string
	broker *broker.Broker
	logger *slog.Logger

	mu          sync.Mutex
	deliver     func(protocol.Event) error
	nextID      uint16
	inflightOut map[uint16]*outMessage
	awaitingRel map[uint16]struct{}
	subs        map[string]broker.SubOptions
	offline     []*broker.Message
}

func newSession(id string, b *broker.Broker, logger *slog.Logger) *Session {
	return &Session{
		id:          id,
		broker:      b,
		logger:      logger,
		inflightOut: make(map[uint16]*outMessage),
		awaitingRel: make(map[uint16]struct{}),
		subs:        make(map[string]broker.SubOptions),
	}
}

// ID returns the owning client identifier.
func (s *Session) ID() string {
	return s.id
}

// attach binds the session to a live connection. Queued messages stay put
// until resume, after the CONNACK has gone out.
func (s *Session) attach(deliver func(protocol.Event) error) {
	s.mu.Lock()
	s.deliver = deliver
	s.mu.Unlock()
}

// resume drains the offline queue into the attached connection.
func (s *Session) resume() {
	s.mu.Lock()
	queued := s.offline
	s.offline = nil
	s.mu.Unlock()

	for _, msg := range queued {
		s.push(msg)
	}
}

// detach unbinds the connection; subsequent deliveries queue offline.
func (s *Session) detach() {
	s.mu.Lock()
	s.deliver = nil
	s.mu.Unlock()
}

// Publish routes an inbound application message into the fabric. QoS 2
// messages are deduplicated on the packet identifier until PUBREL releases it.
func (s *Session) Publish(packetID uint16, msg *broker.Message) error {
	if msg.QoS == 2 {
		s.mu.Lock()
		if _, dup := s.awaitingRel[packetID]; dup {
			s.mu.Unlock()
			return nil
		}
		s.awaitingRel[packetID] = struct{}{}
		s.mu.Unlock()
	}
	s.broker.Publish(msg)
	return nil
}

// PubAck completes an outbound QoS 1 delivery.
func (s *Session) PubAck(id uint16, _ codes.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflightOut, id)
	return nil
}

// PubRec advances an outbound QoS 2 delivery to the release phase.
func (s *Session) PubRec(id uint16, _ codes.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.inflightOut[id]; ok {
		m.state = stateRelReceived
	}
	return nil
}

// PubRel releases an inbound QoS 2 packet identifier.
func (s *Session) PubRel(id uint16, _ codes.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.awaitingRel, id)
	return nil
}

// PubComp completes an outbound QoS 2 delivery.
func (s *Session) PubComp(id uint16, _ codes.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflightOut, id)
	return nil
}

// Subscribe installs accepted filters into the router and replays retained
// messages unless the subscription opts out.
func (s *Session) Subscribe(_ uint16, _ *packets.Properties, filters []packets.SubOption) error {
	for _, f := range filters {
		opts := broker.SubOptions{
			QoS:               f.QoS,
			NoLocal:           f.NoLocal,
			RetainAsPublished: f.RetainAsPublished,
			RetainHandling:    f.RetainHandling,
		}

		s.mu.Lock()
		_, existed := s.subs[f.Topic]
		s.subs[f.Topic] = opts
		s.mu.Unlock()

		s.broker.Subscribe(s.id, f.Topic, opts)

		// Retain handling: 0 sends always, 1 only on new subscriptions,
		// 2 never.
		if f.RetainHandling == 2 || (f.RetainHandling == 1 && existed) {
			continue
		}
		for _, msg := range s.broker.Retained(f.Topic) {
			s.deliverMatched(msg, broker.Subscription{ClientID: s.id, Filter: f.Topic, Opts: opts})
		}
	}
	return nil
}

// Unsubscribe removes filters from the router.
func (s *Session) Unsubscribe(_ uint16, filters []string) error {
	for _, f := range filters {
		s.mu.Lock()
		delete(s.subs, f)
		s.mu.Unlock()
		s.broker.Unsubscribe(s.id, f)
	}
	return nil
}

// deliverMatched is the broker's delivery callback for this session. The
// delivered QoS is the minimum of the published and the granted QoS.
func (s *Session) deliverMatched(msg *broker.Message, sub broker.Subscription) {
	out := *msg
	if sub.Opts.QoS < out.QoS {
		out.QoS = sub.Opts.QoS
	}
	s.push(&out)
}

func (s *Session) push(msg *broker.Message) {
	s.mu.Lock()
	if s.deliver == nil {
		if len(s.offline) < maxOfflineQueue {
			s.offline = append(s.offline, msg)
		} else {
			s.logger.Warn("offline queue full, dropping message",
				slog.String("client_id", s.id),
				slog.String("topic", msg.Topic))
		}
		s.mu.Unlock()
		return
	}

	var packetID uint16
	if msg.QoS > 0 {
		id, ok := s.allocPacketID()
		if !ok {
			s.mu.Unlock()
			s.logger.Warn("in-flight window full, dropping message",
				slog.String("client_id", s.id),
				slog.String("topic", msg.Topic))
			return
		}
		packetID = id
		s.inflightOut[packetID] = &outMessage{msg: msg}
	}
	deliver := s.deliver
	s.mu.Unlock()

	if err := deliver(protocol.PublishEvent{PacketID: packetID, Message: msg}); err != nil {
		s.logger.Debug("delivery failed",
			slog.String("client_id", s.id),
			slog.Any("error", err))
	}
}

// allocPacketID returns the next free outbound packet identifier.
// Caller holds the lock.
func (s *Session) allocPacketID() (uint16, bool) {
	for i := 0; i < 65535; i++ {
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, used := s.inflightOut[s.nextID]; !used {
			return s.nextID, true
		}
	}
	return 0, false
}
