// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/topics"
)

// Deliver translates an outbound event into a wire packet and sends it.
// Events originate from the session, the router, or the engine itself; the
// owning task serializes Deliver against Received.
func (c *Conn) Deliver(ev Event) error {
	switch e := ev.(type) {
	case PublishEvent:
		return c.deliverPublish(e)

	case ConnAckEvent:
		return c.sendPacket(&packets.ConnAck{
			FixedHeader:    packets.FixedHeader{PacketType: packets.ConnAckType},
			Version:        c.protoVersion,
			SessionPresent: e.SessionPresent,
			ReasonCode:     e.Reason,
			Properties:     e.Props,
		})

	case PubAckEvent:
		return c.sendPacket(packets.NewPubAck(c.protoVersion, e.ID, e.Reason))
	case PubRecEvent:
		return c.sendPacket(packets.NewPubRec(c.protoVersion, e.ID, e.Reason))
	case PubRelEvent:
		return c.sendPacket(packets.NewPubRel(c.protoVersion, e.ID, e.Reason))
	case PubCompEvent:
		return c.sendPacket(packets.NewPubComp(c.protoVersion, e.ID, e.Reason))

	case SubAckEvent:
		return c.sendPacket(&packets.SubAck{
			FixedHeader: packets.FixedHeader{PacketType: packets.SubAckType},
			Version:     c.protoVersion,
			ID:          e.ID,
			ReasonCodes: e.Reasons,
		})

	case UnsubAckEvent:
		return c.sendPacket(&packets.UnSubAck{
			FixedHeader: packets.FixedHeader{PacketType: packets.UnsubAckType},
			Version:     c.protoVersion,
			ID:          e.ID,
			ReasonCodes: e.Reasons,
		})

	case DisconnectEvent:
		// Server DISCONNECT does not exist before MQTT 5.0.
		if c.protoVersion != packets.V5 {
			return nil
		}
		return c.sendPacket(&packets.Disconnect{
			FixedHeader: packets.FixedHeader{PacketType: packets.DisconnectType},
			Version:     c.protoVersion,
			ReasonCode:  e.Reason,
		})

	default:
		return nil
	}
}

// deliverPublish encodes an outbound application message: the delivered
// hook runs first, then the retained-flag rule and the mountpoint strip.
func (c *Conn) deliverPublish(e PublishEvent) error {
	msg := e.Message
	if acc, _ := c.hooks.Run(hooks.MessageDelivered, msg, c.Credentials()); acc != nil {
		if m, ok := acc.(*broker.Message); ok {
			msg = m
		}
	}

	retain := msg.Retain
	// Bridges see the retain flag as published; everyone else only on
	// messages replayed from the retained store.
	if !c.isBridge && retain && !msg.Headers.Retained {
		retain = false
	}

	pkt := &packets.Publish{
		FixedHeader: packets.FixedHeader{
			PacketType: packets.PublishType,
			QoS:        msg.QoS,
			Retain:     retain,
			Dup:        e.Dup,
		},
		Version:   c.protoVersion,
		TopicName: topics.Unmount(c.mountpoint, msg.Topic),
		ID:        e.PacketID,
		Payload:   msg.Payload,
	}
	return c.sendPacket(pkt)
}

// sendPacket serializes and sends one packet, updating the send counters
// and metrics on success. Send failures propagate to the caller; the engine
// does not retry.
func (c *Conn) sendPacket(pkt packets.ControlPacket) error {
	if err := c.send(pkt.Encode()); err != nil {
		return err
	}
	c.sendStats.Pkt++
	c.metrics.PacketSent(packets.PacketNames[pkt.Type()])
	if pkt.Type() == packets.PublishType {
		c.sendStats.Msg++
		c.metrics.MessageSent()
	}
	return nil
}
