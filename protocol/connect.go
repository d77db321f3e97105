// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/topics"
)

// handleConnect runs the CONNECT handshake: snapshot the proposed fields,
// run the check chain, authenticate, open the session, register with the
// connection manager, arm keepalive and answer with CONNACK.
func (c *Conn) handleConnect(p *packets.Connect) error {
	c.logger.Debug("CONNECT received", slog.String("packet", p.String()))

	c.protoName = p.ProtocolName
	c.protoVersion = p.ProtocolVersion
	c.clientID = p.ClientID
	c.cleanStart = p.CleanStart
	c.keepalive = p.KeepAlive
	c.connProps = p.Properties
	c.isBridge = p.IsBridge
	if p.UsernameFlag && p.Username != "" {
		c.username = p.Username
	}
	c.will = willMessage(p)
	c.connected = true
	c.connectedAt = c.now()

	if rc := runChecks(
		func() codes.Reason { return c.checkProtoVersion() },
		func() codes.Reason { return c.checkClientID() },
	); rc.Error() {
		return c.refuseConnect(rc)
	}

	super, err := c.auth.Authenticate(c.Credentials(), p.Password)
	if err != nil {
		c.metrics.AuthError()
		c.logger.Info("authentication failed",
			slog.String("client_id", c.clientID),
			slog.String("username", c.username),
			slog.Any("error", err))
		return c.refuseConnect(authReason(err))
	}
	c.isSuper = super

	if c.clientID == "" {
		c.clientID = "auto-" + uuid.NewString()
		c.ackProps = &packets.Properties{AssignedClientID: c.clientID}
	}

	sess, present, err := c.sessions.Open(SessionParams{
		ClientID:     c.clientID,
		Zone:         c.zoneName,
		CleanStart:   c.cleanStart,
		ProtoVersion: c.protoVersion,
		ConnProps:    c.connProps,
		Deliver:      c.eventSink,
	})
	if err != nil {
		c.logger.Error("failed to open session",
			slog.String("client_id", c.clientID),
			slog.Any("error", err))
		return c.refuseConnect(codes.UnspecifiedError)
	}
	c.session = sess

	c.registry.Register(c.clientID, c.self, cm.Info{
		Zone:         c.zoneName,
		Username:     c.username,
		PeerAddr:     c.peerAddr,
		ProtoVersion: c.protoVersion,
		CleanStart:   c.cleanStart,
		Keepalive:    c.keepalive,
		ConnectedAt:  c.connectedAt,
	})
	c.registered = true

	if c.keepalive > 0 && c.armKA != nil {
		backoff := c.zone.KeepaliveBackoff
		if backoff == 0 {
			backoff = 0.75
		}
		secs := math.Round(float64(c.keepalive) * backoff)
		c.armKA(time.Duration(secs) * time.Second)
	}

	c.hooks.Run(hooks.ClientConnected, codes.Success, c.Info())

	c.mountpoint = topics.ExpandMountpoint(c.zone.Mountpoint, c.clientID, c.username)

	c.metrics.ConnectionUp()
	c.logger.Info("client connected",
		slog.String("client_id", c.clientID),
		slog.Int("proto_version", int(c.protoVersion)),
		slog.Bool("session_present", present))

	return c.Deliver(ConnAckEvent{
		Reason:         codes.Success,
		SessionPresent: present,
		Props:          c.ackProps,
	})
}

// checkProtoVersion verifies the (name, version) pair is recognized.
func (c *Conn) checkProtoVersion() codes.Reason {
	if !packets.ValidVersion(c.protoName, c.protoVersion) {
		return codes.ProtocolError
	}
	return codes.Success
}

// checkClientID applies the zone's client identifier policy. An empty
// identifier is accepted only with clean start, and gets a server-assigned
// one later in the handshake.
func (c *Conn) checkClientID() codes.Reason {
	maxLen := c.zone.MaxClientIDLen
	if maxLen == 0 {
		maxLen = 65535
	}
	switch {
	case c.protoVersion == packets.V31 && c.clientID == "":
		return codes.ClientIdentifierNotValid
	case c.clientID == "" && !c.cleanStart:
		return codes.ClientIdentifierNotValid
	case c.clientID == "":
		return codes.Success
	case len(c.clientID) > maxLen:
		return codes.ClientIdentifierNotValid
	default:
		return codes.Success
	}
}

// refuseConnect rolls back the provisional connected state, answers with a
// negative CONNACK and returns the matching error variant. Nothing is
// registered and no session is opened on this path.
func (c *Conn) refuseConnect(rc codes.Reason) error {
	c.connected = false
	if err := c.Deliver(ConnAckEvent{Reason: rc}); err != nil {
		return err
	}
	switch rc {
	case codes.ClientIdentifierNotValid:
		return ErrInvalidClientID
	case codes.BadUserNameOrPassword, codes.NotAuthorized:
		return ErrAuthFailure
	case codes.UnspecifiedError:
		return ErrSessionOpen
	default:
		return ErrProtocol
	}
}

func authReason(err error) codes.Reason {
	switch err {
	case auth.ErrBadCredentials, auth.ErrUnknownClient:
		return codes.BadUserNameOrPassword
	default:
		return codes.NotAuthorized
	}
}

// willMessage captures the will from the CONNECT payload. The topic is kept
// unmounted; the mountpoint is applied when the will is published, after
// template expansion has run.
func willMessage(p *packets.Connect) *broker.Message {
	if !p.WillFlag {
		return nil
	}
	return &broker.Message{
		From:    p.ClientID,
		QoS:     p.WillQoS,
		Retain:  p.WillRetain,
		Topic:   p.WillTopic,
		Payload: p.WillPayload,
	}
}
