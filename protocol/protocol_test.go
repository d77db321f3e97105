// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol_test

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/protocol"
)

type pubCall struct {
	id  uint16
	msg *broker.Message
}

// mockSession records every call routed into the session.
type mockSession struct {
	published    []pubCall
	pubacks      []uint16
	pubrecs      []uint16
	pubrels      []uint16
	pubcomps     []uint16
	subscribed   [][]packets.SubOption
	unsubscribed [][]string
	publishErr   error
	subscribeErr error
}

func (s *mockSession) Publish(id uint16, msg *broker.Message) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, pubCall{id: id, msg: msg})
	return nil
}

func (s *mockSession) PubAck(id uint16, _ codes.Reason) error {
	s.pubacks = append(s.pubacks, id)
	return nil
}

func (s *mockSession) PubRec(id uint16, _ codes.Reason) error {
	s.pubrecs = append(s.pubrecs, id)
	return nil
}

func (s *mockSession) PubRel(id uint16, _ codes.Reason) error {
	s.pubrels = append(s.pubrels, id)
	return nil
}

func (s *mockSession) PubComp(id uint16, _ codes.Reason) error {
	s.pubcomps = append(s.pubcomps, id)
	return nil
}

func (s *mockSession) Subscribe(_ uint16, _ *packets.Properties, filters []packets.SubOption) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribed = append(s.subscribed, filters)
	return nil
}

func (s *mockSession) Unsubscribe(_ uint16, topics []string) error {
	s.unsubscribed = append(s.unsubscribed, topics)
	return nil
}

// mockOpener hands out the mock session.
type mockOpener struct {
	sess       *mockSession
	present    bool
	err        error
	lastParams protocol.SessionParams
	opens      int
}

func (o *mockOpener) Open(p protocol.SessionParams) (protocol.Session, bool, error) {
	o.opens++
	o.lastParams = p
	if o.err != nil {
		return nil, false, o.err
	}
	return o.sess, o.present, nil
}

// mockRegistry records register/unregister calls.
type mockRegistry struct {
	registered   []string
	unregistered []string
}

func (r *mockRegistry) Register(clientID string, _ cm.Entry, _ cm.Info) {
	r.registered = append(r.registered, clientID)
}

func (r *mockRegistry) Unregister(clientID string, _ cm.Entry) {
	r.unregistered = append(r.unregistered, clientID)
}

// mockRouter records will publications.
type mockRouter struct {
	published []*broker.Message
}

func (r *mockRouter) Publish(msg *broker.Message) {
	r.published = append(r.published, msg)
}

type mockEntry struct{ takeovers int }

func (e *mockEntry) Takeover() { e.takeovers++ }

// denyAuth rejects every authentication attempt.
type denyAuth struct{ err error }

func (d denyAuth) Authenticate(auth.Credentials, []byte) (bool, error) {
	return false, d.err
}

// superAuth accepts and grants superuser.
type superAuth struct{}

func (superAuth) Authenticate(auth.Credentials, []byte) (bool, error) { return true, nil }

// denyTopics denies the listed topics for any action.
type denyTopics struct{ topics map[string]bool }

func (d denyTopics) CheckACL(_ auth.Credentials, _ auth.Action, topic string) bool {
	return !d.topics[topic]
}

type fixture struct {
	conn     *protocol.Conn
	sent     [][]byte
	sendErr  error
	session  *mockSession
	opener   *mockOpener
	registry *mockRegistry
	router   *mockRouter
	bus      *hooks.Bus
	entry    *mockEntry
	armed    []time.Duration
	now      time.Time
}

type fixtureOpt func(*protocol.Options)

func withZone(z config.Zone) fixtureOpt {
	return func(o *protocol.Options) { o.ZoneCfg = z }
}

func withAuth(a auth.Authenticator) fixtureOpt {
	return func(o *protocol.Options) { o.Auth = a }
}

func withACL(a auth.Authorizer) fixtureOpt {
	return func(o *protocol.Options) { o.ACL = a }
}

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()

	f := &fixture{
		session:  &mockSession{},
		registry: &mockRegistry{},
		router:   &mockRouter{},
		bus:      hooks.New(),
		entry:    &mockEntry{},
		now:      time.Unix(1700000000, 0),
	}
	f.opener = &mockOpener{sess: f.session}

	o := protocol.Options{
		Zone:    "default",
		ZoneCfg: config.DefaultZone(),
		Send: func(b []byte) error {
			if f.sendErr != nil {
				return f.sendErr
			}
			f.sent = append(f.sent, b)
			return nil
		},
		PeerAddr:     &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001},
		Registry:     f.registry,
		Sessions:     f.opener,
		Auth:         auth.NoAuth{},
		ACL:          auth.AllowAll{},
		Hooks:        f.bus,
		Broker:       f.router,
		Self:         f.entry,
		ArmKeepalive: func(d time.Duration) { f.armed = append(f.armed, d) },
		Now:          func() time.Time { return f.now },
	}
	for _, opt := range opts {
		opt(&o)
	}

	f.conn = protocol.Init(o)
	return f
}

// lastSent decodes the most recent outbound frame.
func (f *fixture) lastSent(t *testing.T) packets.ControlPacket {
	t.Helper()
	require.NotEmpty(t, f.sent, "expected at least one outbound packet")
	return decodeFrame(t, f.conn.ParserSeed().Version, f.sent[len(f.sent)-1])
}

func decodeFrame(t *testing.T, version byte, frame []byte) packets.ControlPacket {
	t.Helper()
	fr := packets.NewFramer(bytes.NewReader(frame), packets.Seed{Version: version})
	pkt, err := fr.ReadPacket()
	require.NoError(t, err)
	return pkt
}

func connectPacket(version byte, clientID string, clean bool, keepalive uint16) *packets.Connect {
	name := packets.ProtocolName
	if version == packets.V31 {
		name = packets.ProtocolNameV3
	}
	return &packets.Connect{
		FixedHeader:     packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName:    name,
		ProtocolVersion: version,
		CleanStart:      clean,
		KeepAlive:       keepalive,
		ClientID:        clientID,
	}
}

// connect drives a successful handshake and asserts the CONNACK.
func (f *fixture) connect(t *testing.T, version byte, clientID string) {
	t.Helper()
	err := f.conn.Received(connectPacket(version, clientID, true, 60))
	require.NoError(t, err)

	ack, ok := f.lastSent(t).(*packets.ConnAck)
	require.True(t, ok, "expected CONNACK")
	require.Equal(t, codes.Success, ack.ReasonCode)
	f.sent = nil
}

func publishPacket(version byte, qos byte, id uint16, topic, payload string) *packets.Publish {
	return &packets.Publish{
		FixedHeader: packets.FixedHeader{PacketType: packets.PublishType, QoS: qos},
		Version:     version,
		TopicName:   topic,
		ID:          id,
		Payload:     []byte(payload),
	}
}

var errBackend = errors.New("backend unavailable")
