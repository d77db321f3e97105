// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"log/slog"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/topics"
)

// handlePublish runs the inbound publish pipeline: capability checks, ACL,
// mountpoint rewriting, session hand-off and the per-QoS acknowledgement.
func (c *Conn) handlePublish(p *packets.Publish) error {
	rc := runChecks(
		func() codes.Reason { return c.checkPubCaps(p) },
		func() codes.Reason { return c.checkPubACL(p) },
	)
	if rc.Error() {
		if rc == codes.NotAuthorized {
			c.metrics.AuthError()
		}
		return c.refusePublish(p, rc)
	}

	msg := &broker.Message{
		From:      c.clientID,
		QoS:       p.QoS,
		Retain:    p.Retain,
		Topic:     topics.Mount(c.mountpoint, p.TopicName),
		Payload:   p.Payload,
		Timestamp: c.now(),
	}
	if err := c.session.Publish(p.ID, msg); err != nil {
		c.logger.Warn("session rejected publish",
			slog.String("client_id", c.clientID),
			slog.String("topic", p.TopicName),
			slog.Any("error", err))
		return c.refusePublish(p, codes.UnspecifiedError)
	}

	switch p.QoS {
	case 0:
		return nil
	case 1:
		return c.Deliver(PubAckEvent{ID: p.ID, Reason: codes.Success})
	default:
		return c.Deliver(PubRecEvent{ID: p.ID, Reason: codes.Success})
	}
}

// refusePublish surfaces a pipeline failure to the client. QoS 0 has no
// acknowledgement to carry the code, so the message is dropped silently.
func (c *Conn) refusePublish(p *packets.Publish, rc codes.Reason) error {
	c.logger.Debug("publish refused",
		slog.String("client_id", c.clientID),
		slog.String("topic", p.TopicName),
		slog.String("reason", rc.String()))

	switch p.QoS {
	case 0:
		return nil
	case 1:
		return c.Deliver(PubAckEvent{ID: p.ID, Reason: rc})
	default:
		return c.Deliver(PubRecEvent{ID: p.ID, Reason: rc})
	}
}

// checkPubCaps applies the zone policy to the publish.
func (c *Conn) checkPubCaps(p *packets.Publish) codes.Reason {
	if p.QoS > c.zone.MaxQoS {
		return codes.QoSNotSupported
	}
	if p.Retain && !c.zone.RetainAvailable {
		return codes.RetainNotSupported
	}
	return codes.Success
}

// checkPubACL consults access control. Superusers and connections in zones
// with ACL disabled skip the check.
func (c *Conn) checkPubACL(p *packets.Publish) codes.Reason {
	if c.isSuper || !c.enableACL || c.acl == nil {
		return codes.Success
	}
	if !c.acl.CheckACL(c.Credentials(), auth.ActionPublish, p.TopicName) {
		return codes.NotAuthorized
	}
	return codes.Success
}
