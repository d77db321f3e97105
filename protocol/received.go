// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"log/slog"

	"github.com/moziie/emqx/packets"
)

// Received ingests one decoded inbound packet. It validates the packet,
// updates the receive counters, and drives the state machine. Errors
// returned here are fatal to the connection; the owning task converts them
// into Shutdown.
func (c *Conn) Received(pkt packets.ControlPacket) error {
	if err := c.validate(pkt); err != nil {
		return err
	}

	c.recvStats.Pkt++
	c.metrics.PacketReceived(packets.PacketNames[pkt.Type()])
	if pkt.Type() == packets.PublishType {
		c.recvStats.Msg++
		c.metrics.MessageReceived()
	}

	return c.process(pkt)
}

func (c *Conn) process(pkt packets.ControlPacket) error {
	if p, ok := pkt.(*packets.Connect); ok {
		if c.connected {
			c.logger.Warn("duplicate CONNECT", slog.String("client_id", c.clientID))
			return ErrBadConnect
		}
		return c.handleConnect(p)
	}

	if !c.connected {
		c.logger.Debug("packet before CONNECT",
			slog.String("packet", packets.PacketNames[pkt.Type()]),
			slog.Any("peer", c.peerAddr))
		return ErrNotConnected
	}

	switch p := pkt.(type) {
	case *packets.Publish:
		return c.handlePublish(p)
	case *packets.PubAck:
		return c.handlePubAck(p)
	case *packets.PubRec:
		return c.handlePubRec(p)
	case *packets.PubRel:
		return c.handlePubRel(p)
	case *packets.PubComp:
		return c.handlePubComp(p)
	case *packets.Subscribe:
		return c.handleSubscribe(p)
	case *packets.Unsubscribe:
		return c.handleUnsubscribe(p)
	case *packets.PingReq:
		return c.handlePingReq()
	case *packets.Disconnect:
		return c.handleDisconnect(p)
	case *packets.Auth:
		// Enhanced authentication is not negotiated; tolerate the packet.
		return nil
	default:
		return packets.ErrInvalidPacketType
	}
}
