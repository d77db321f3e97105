// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"io"

	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
)

// The QoS acknowledgement router: inbound PUBACK/PUBREC/PUBREL/PUBCOMP feed
// the session's in-flight tracking; PUBREC and PUBREL additionally drive the
// next step of the QoS 2 exchange.

func (c *Conn) handlePubAck(p *packets.PubAck) error {
	return c.session.PubAck(p.ID, p.ReasonCode)
}

func (c *Conn) handlePubRec(p *packets.PubRec) error {
	if err := c.session.PubRec(p.ID, p.ReasonCode); err != nil {
		return err
	}
	return c.Deliver(PubRelEvent{ID: p.ID, Reason: codes.Success})
}

func (c *Conn) handlePubRel(p *packets.PubRel) error {
	if err := c.session.PubRel(p.ID, p.ReasonCode); err != nil {
		return err
	}
	return c.Deliver(PubCompEvent{ID: p.ID, Reason: codes.Success})
}

func (c *Conn) handlePubComp(p *packets.PubComp) error {
	return c.session.PubComp(p.ID, p.ReasonCode)
}

func (c *Conn) handlePingReq() error {
	resp := &packets.PingResp{FixedHeader: packets.FixedHeader{PacketType: packets.PingRespType}}
	return c.sendPacket(resp)
}

// handleDisconnect processes the client's DISCONNECT: the will message is
// discarded and io.EOF tells the owning task to stop normally. An MQTT 5
// disconnect with reason 0x04 asks the server to publish the will anyway.
func (c *Conn) handleDisconnect(p *packets.Disconnect) error {
	if p.ReasonCode != codes.DisconnectWithWill {
		c.will = nil
	}
	return io.EOF
}
