// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the per-connection MQTT protocol engine. One
// Conn owns the state of a single client connection and is driven by three
// entry points: Received for inbound packets, Deliver for outbound events,
// and Shutdown for terminal cleanup. The owning task serializes all three.
package protocol

import (
	"crypto/x509"
	"log/slog"
	"net"
	"time"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/metrics"
	"github.com/moziie/emqx/packets"
)

// SendFunc is the injected byte sink for serialized outbound packets.
type SendFunc func([]byte) error

// Stats counts packets and messages in one direction. Msg increments only
// on PUBLISH frames.
type Stats struct {
	Pkt uint64
	Msg uint64
}

// Options configures a connection engine at Init.
type Options struct {
	Zone     string
	ZoneCfg  config.Zone
	Send     SendFunc
	PeerAddr net.Addr
	PeerCert *x509.Certificate
	Logger   *slog.Logger

	Registry Registry
	Sessions SessionOpener
	Auth     auth.Authenticator
	ACL      auth.Authorizer
	Hooks    *hooks.Bus
	Broker   WillPublisher
	Metrics  *metrics.Metrics

	// Self is the handle registered with the connection manager.
	Self cm.Entry

	// ArmKeepalive schedules the transport's idle timer after a
	// successful handshake. The engine never owns the timer.
	ArmKeepalive func(time.Duration)

	// EventSink is the handle given to the session for out-of-band
	// deliveries. Transports set it to their serialized entry into
	// Deliver; it defaults to the engine's Deliver directly.
	EventSink func(Event) error

	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time
}

// Conn is the protocol state of one client connection. It is mutated only
// through the entry points and never shared across connections.
type Conn struct {
	zoneName string
	zone     config.Zone
	send     SendFunc
	peerAddr net.Addr
	peerCert *x509.Certificate
	logger   *slog.Logger

	registry  Registry
	sessions  SessionOpener
	auth      auth.Authenticator
	acl       auth.Authorizer
	hooks     *hooks.Bus
	broker    WillPublisher
	metrics   *metrics.Metrics
	self      cm.Entry
	armKA     func(time.Duration)
	now       func() time.Time
	eventSink func(Event) error

	protoVersion byte
	protoName    string
	clientID     string
	username     string
	isSuper      bool
	isBridge     bool
	cleanStart   bool
	keepalive    uint16
	mountpoint   string
	enableACL    bool
	will         *broker.Message
	session      Session
	connProps    *packets.Properties
	ackProps     *packets.Properties

	recvStats Stats
	sendStats Stats

	connected   bool
	registered  bool
	connectedAt time.Time
}

// Init creates the engine state for a fresh connection.
func Init(opts Options) *Conn {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Conn{
		zoneName:     opts.Zone,
		zone:         opts.ZoneCfg,
		send:         opts.Send,
		peerAddr:     opts.PeerAddr,
		peerCert:     opts.PeerCert,
		logger:       opts.Logger,
		registry:     opts.Registry,
		sessions:     opts.Sessions,
		auth:         opts.Auth,
		acl:          opts.ACL,
		hooks:        opts.Hooks,
		broker:       opts.Broker,
		metrics:      opts.Metrics,
		self:         opts.Self,
		armKA:        opts.ArmKeepalive,
		now:          opts.Now,
		protoVersion: packets.V311,
		protoName:    packets.ProtocolName,
		mountpoint:   opts.ZoneCfg.Mountpoint,
		enableACL:    opts.ZoneCfg.EnableACL,
	}

	c.eventSink = opts.EventSink
	if c.eventSink == nil {
		c.eventSink = c.Deliver
	}

	c.username = usernameFromPeerCert(opts.ZoneCfg.PeerCertAsUsername, opts.PeerCert)
	return c
}

func usernameFromPeerCert(policy string, cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	switch policy {
	case config.PeerCertCN:
		return cert.Subject.CommonName
	case config.PeerCertDN:
		return cert.Subject.String()
	default:
		return ""
	}
}

// Info is the read-only connection summary published to the registry and
// exposed to introspection surfaces.
type Info struct {
	Zone         string
	ClientID     string
	Username     string
	PeerAddr     net.Addr
	ProtoVersion byte
	ProtoName    string
	CleanStart   bool
	Keepalive    uint16
	IsSuper      bool
	IsBridge     bool
	Connected    bool
	ConnectedAt  time.Time
	Mountpoint   string
}

// Info returns the read-only connection summary.
func (c *Conn) Info() Info {
	return Info{
		Zone:         c.zoneName,
		ClientID:     c.clientID,
		Username:     c.username,
		PeerAddr:     c.peerAddr,
		ProtoVersion: c.protoVersion,
		ProtoName:    c.protoName,
		CleanStart:   c.cleanStart,
		Keepalive:    c.keepalive,
		IsSuper:      c.isSuper,
		IsBridge:     c.isBridge,
		Connected:    c.connected,
		ConnectedAt:  c.connectedAt,
		Mountpoint:   c.mountpoint,
	}
}

// Caps returns the zone capability limits in force for this connection.
func (c *Conn) Caps() config.Zone {
	return c.zone
}

// Credentials returns the identity presented to access control.
func (c *Conn) Credentials() auth.Credentials {
	return auth.Credentials{
		Zone:     c.zoneName,
		ClientID: c.clientID,
		Username: c.username,
		PeerAddr: c.peerAddr,
	}
}

// ClientID returns the client identifier, empty until the handshake
// assigns one.
func (c *Conn) ClientID() string {
	return c.clientID
}

// Session returns the session handle, nil before a successful handshake.
func (c *Conn) Session() Session {
	return c.session
}

// Stats returns the receive and send counters.
func (c *Conn) Stats() (recv, sent Stats) {
	return c.recvStats, c.sendStats
}

// ParserSeed returns the framer state for this connection: the negotiated
// protocol version and the zone packet size limit.
func (c *Conn) ParserSeed() packets.Seed {
	return packets.Seed{
		Version:       c.protoVersion,
		MaxPacketSize: c.zone.MaxPacketSize,
	}
}
