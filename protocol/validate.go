// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/topics"
)

// validate applies version-aware structural checks to an inbound packet.
// A failure that maps to an MQTT 5 reason code emits DISCONNECT with that
// code and returns ErrProtocol; any other failure emits
// DISCONNECT(MalformedPacket) and returns the underlying cause. Outbound
// DISCONNECT is suppressed for pre-5.0 connections by the deliver path.
func (c *Conn) validate(pkt packets.ControlPacket) error {
	switch p := pkt.(type) {
	case *packets.Connect:
		if p.ReservedBit != 0 {
			return c.malformed(packets.ErrInvalidFlags)
		}
		if p.WillFlag {
			if p.WillQoS > 2 {
				return c.malformed(packets.ErrInvalidQoS)
			}
			if p.WillTopic == "" {
				return c.protocolError(codes.TopicNameInvalid)
			}
		}

	case *packets.Publish:
		if p.QoS > 2 {
			return c.malformed(packets.ErrInvalidQoS)
		}
		if err := topics.ValidateTopicName(p.TopicName); err != nil {
			return c.protocolError(codes.TopicNameInvalid)
		}
		if p.QoS > 0 && p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}

	case *packets.Subscribe:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
		if len(p.Topics) == 0 {
			return c.protocolError(codes.ProtocolError)
		}

	case *packets.Unsubscribe:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
		if len(p.Topics) == 0 {
			return c.protocolError(codes.ProtocolError)
		}

	case *packets.PubAck:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
	case *packets.PubRec:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
	case *packets.PubRel:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
	case *packets.PubComp:
		if p.ID == 0 {
			return c.protocolError(codes.ProtocolError)
		}
	}
	return nil
}

func (c *Conn) protocolError(rc codes.Reason) error {
	_ = c.Deliver(DisconnectEvent{Reason: rc})
	return fmt.Errorf("%w: %s", ErrProtocol, rc)
}

func (c *Conn) malformed(cause error) error {
	_ = c.Deliver(DisconnectEvent{Reason: codes.MalformedPacket})
	return cause
}
