// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/protocol"
)

func TestDeliverPublish(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V311, "c1")

	err := f.conn.Deliver(protocol.PublishEvent{
		PacketID: 5,
		Message:  &broker.Message{Topic: "t", Payload: []byte("x"), QoS: 1},
	})
	require.NoError(t, err)

	pub, ok := f.lastSent(t).(*packets.Publish)
	require.True(t, ok)
	assert.Equal(t, "t", pub.TopicName)
	assert.Equal(t, uint16(5), pub.ID)
	assert.Equal(t, []byte("x"), pub.Payload)

	recv, sent := f.conn.Stats()
	assert.Equal(t, uint64(0), recv.Msg)
	assert.Equal(t, uint64(1), sent.Msg)
	assert.Equal(t, uint64(2), sent.Pkt) // CONNACK + PUBLISH
}

func TestDeliverMountpointStripped(t *testing.T) {
	zone := config.DefaultZone()
	zone.Mountpoint = "u/%c/"
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V311, "alice")

	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "u/alice/t", Payload: []byte("x")},
	})
	require.NoError(t, err)

	pub := f.lastSent(t).(*packets.Publish)
	assert.Equal(t, "t", pub.TopicName)
}

func TestDeliverForeignTopicNotStripped(t *testing.T) {
	zone := config.DefaultZone()
	zone.Mountpoint = "u/%c/"
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V311, "alice")

	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "other/t", Payload: []byte("x")},
	})
	require.NoError(t, err)

	pub := f.lastSent(t).(*packets.Publish)
	assert.Equal(t, "other/t", pub.TopicName)
}

func TestDeliverCleanRetain(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V311, "c1")

	// Live publish carrying retain: cleared for regular clients.
	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "t", Retain: true},
	})
	require.NoError(t, err)
	pub := f.lastSent(t).(*packets.Publish)
	assert.False(t, pub.Retain)

	// Replay from the retained store keeps the flag.
	err = f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "t", Retain: true, Headers: broker.Headers{Retained: true}},
	})
	require.NoError(t, err)
	pub = f.lastSent(t).(*packets.Publish)
	assert.True(t, pub.Retain)
}

func TestDeliverBridgeKeepsRetain(t *testing.T) {
	f := newFixture(t)
	pkt := connectPacket(packets.V311, "bridge-1", true, 0)
	pkt.IsBridge = true
	require.NoError(t, f.conn.Received(pkt))
	f.sent = nil

	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "t", Retain: true},
	})
	require.NoError(t, err)

	pub := f.lastSent(t).(*packets.Publish)
	assert.True(t, pub.Retain)
}

func TestDeliverDisconnectSuppressedPreV5(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V311, "c1")

	err := f.conn.Deliver(protocol.DisconnectEvent{Reason: codes.MalformedPacket})
	require.NoError(t, err)
	assert.Empty(t, f.sent)
}

func TestDeliverDisconnectV5(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V5, "c1")

	err := f.conn.Deliver(protocol.DisconnectEvent{Reason: codes.MalformedPacket})
	require.NoError(t, err)

	d, ok := f.lastSent(t).(*packets.Disconnect)
	require.True(t, ok)
	assert.Equal(t, codes.MalformedPacket, d.ReasonCode)
}

func TestDeliveredHookCanRewrite(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V311, "c1")
	f.bus.Add(hooks.MessageDelivered, func(acc any, _ ...any) (any, bool) {
		msg := acc.(*broker.Message)
		out := *msg
		out.Payload = []byte("rewritten")
		return &out, false
	})

	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "t", Payload: []byte("original")},
	})
	require.NoError(t, err)

	pub := f.lastSent(t).(*packets.Publish)
	assert.Equal(t, []byte("rewritten"), pub.Payload)
}

func TestDeliverSendFailure(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V311, "c1")
	f.sendErr = errBackend

	err := f.conn.Deliver(protocol.PublishEvent{
		Message: &broker.Message{Topic: "t"},
	})
	assert.ErrorIs(t, err, errBackend)

	// Failed sends do not count.
	_, sent := f.conn.Stats()
	assert.Equal(t, uint64(1), sent.Pkt)
}
