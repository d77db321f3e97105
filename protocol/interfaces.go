// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
)

// Session is the engine's view of the long-lived per-client session that
// buffers in-flight messages and owns subscriptions.
type Session interface {
	// Publish hands an inbound application message to the session for
	// routing. packetID is zero for QoS 0.
	Publish(packetID uint16, msg *broker.Message) error

	// PubAck, PubRec, PubRel and PubComp route the client's QoS
	// acknowledgements into the session's in-flight tracking.
	PubAck(id uint16, reason codes.Reason) error
	PubRec(id uint16, reason codes.Reason) error
	PubRel(id uint16, reason codes.Reason) error
	PubComp(id uint16, reason codes.Reason) error

	// Subscribe installs the accepted topic filters.
	Subscribe(packetID uint16, props *packets.Properties, filters []packets.SubOption) error

	// Unsubscribe removes the topic filters.
	Unsubscribe(packetID uint16, topics []string) error
}

// SessionParams are the arguments to open a session at handshake time.
type SessionParams struct {
	ClientID     string
	Zone         string
	CleanStart   bool
	ProtoVersion byte
	ConnProps    *packets.Properties

	// Deliver is the connection's outbound event sink; the session uses
	// it to push messages and acknowledgements towards the client.
	Deliver func(Event) error
}

// SessionOpener creates or resumes sessions.
type SessionOpener interface {
	Open(params SessionParams) (Session, bool, error)
}

// Registry is the connection manager surface the engine calls.
type Registry interface {
	Register(clientID string, e cm.Entry, info cm.Info)
	Unregister(clientID string, e cm.Entry)
}

// WillPublisher publishes will messages into the routing fabric.
type WillPublisher interface {
	Publish(msg *broker.Message)
}
