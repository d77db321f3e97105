// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"sync"

	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/protocol"
)

var _ protocol.SessionOpener = (*Manager)(nil)

// Manager creates and resumes sessions, keyed by client identifier.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	broker   *broker.Broker
	logger   *slog.Logger
}

// NewManager creates a session manager backed by the given router.
func NewManager(b *broker.Broker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		broker:   b,
		logger:   logger,
	}
}

// Open creates or resumes the session for a connecting client. The second
// return value is the CONNACK session-present flag: prior state was found
// and the client did not ask for a clean start.
func (m *Manager) Open(p protocol.SessionParams) (protocol.Session, bool, error) {
	m.mu.Lock()
	s, existed := m.sessions[p.ClientID]
	present := existed && !p.CleanStart
	if !present {
		if existed {
			m.broker.Unregister(p.ClientID)
		}
		s = newSession(p.ClientID, m.broker, m.logger)
		m.sessions[p.ClientID] = s
	}
	m.mu.Unlock()

	m.broker.Register(p.ClientID, s.deliverMatched)
	if present {
		// Re-install resumed subscriptions into the router.
		s.mu.Lock()
		subs := make(map[string]broker.SubOptions, len(s.subs))
		for f, o := range s.subs {
			subs[f] = o
		}
		s.mu.Unlock()
		for f, o := range subs {
			m.broker.Subscribe(p.ClientID, f, o)
		}
	}
	s.attach(p.Deliver)

	m.logger.Debug("session opened",
		slog.String("client_id", p.ClientID),
		slog.Bool("session_present", present))
	return s, present, nil
}

// Resume drains messages queued while the client was offline. Transports
// call it once the handshake's CONNACK is on the wire, so no application
// message ever precedes it.
func (m *Manager) Resume(clientID string) {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	m.mu.Unlock()
	if ok {
		s.resume()
	}
}

// Disconnect detaches the session from its connection. With discard the
// session state is dropped entirely, as after a clean-start lifetime.
func (m *Manager) Disconnect(clientID string, discard bool) {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	if discard {
		delete(m.sessions, clientID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.detach()
	if discard {
		m.broker.Unregister(clientID)
	}
}

// Get returns the session for a client identifier.
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
