// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
)

// Event is an outbound event handed to Deliver. Events originate from the
// session, the router, or the engine itself.
type Event interface {
	event()
}

// PublishEvent delivers an application message to the client.
type PublishEvent struct {
	PacketID uint16
	Message  *broker.Message
	Dup      bool
}

// ConnAckEvent acknowledges a CONNECT.
type ConnAckEvent struct {
	Reason         codes.Reason
	SessionPresent bool
	Props          *packets.Properties
}

// PubAckEvent acknowledges a QoS 1 publish.
type PubAckEvent struct {
	ID     uint16
	Reason codes.Reason
}

// PubRecEvent is the first QoS 2 receiver step.
type PubRecEvent struct {
	ID     uint16
	Reason codes.Reason
}

// PubRelEvent is the QoS 2 release step.
type PubRelEvent struct {
	ID     uint16
	Reason codes.Reason
}

// PubCompEvent completes a QoS 2 exchange.
type PubCompEvent struct {
	ID     uint16
	Reason codes.Reason
}

// SubAckEvent acknowledges a SUBSCRIBE with per-filter reason codes.
type SubAckEvent struct {
	ID      uint16
	Reasons []codes.Reason
}

// UnsubAckEvent acknowledges an UNSUBSCRIBE.
type UnsubAckEvent struct {
	ID      uint16
	Reasons []codes.Reason
}

// DisconnectEvent sends a server DISCONNECT. Suppressed entirely for
// pre-5.0 connections.
type DisconnectEvent struct {
	Reason codes.Reason
}

func (PublishEvent) event()    {}
func (ConnAckEvent) event()    {}
func (PubAckEvent) event()     {}
func (PubRecEvent) event()     {}
func (PubRelEvent) event()     {}
func (PubCompEvent) event()    {}
func (SubAckEvent) event()     {}
func (UnsubAckEvent) event()   {}
func (DisconnectEvent) event() {}
