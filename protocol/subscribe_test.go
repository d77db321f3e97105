// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
)

func subscribePacket(version byte, id uint16, filters ...packets.SubOption) *packets.Subscribe {
	return &packets.Subscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubscribeType, QoS: 1},
		Version:     version,
		ID:          id,
		Topics:      filters,
	}
}

func TestSubscribeGrants(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V5, "c1")

	err := f.conn.Received(subscribePacket(packets.V5, 11,
		packets.SubOption{Topic: "a/+", QoS: 1},
		packets.SubOption{Topic: "b", QoS: 2},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	assert.Equal(t, uint16(11), ack.ID)
	assert.Equal(t, []codes.Reason{codes.GrantedQoS1, codes.GrantedQoS2}, ack.ReasonCodes)

	require.Len(t, f.session.subscribed, 1)
	assert.Equal(t, "a/+", f.session.subscribed[0][0].Topic)
}

func TestSubscribeDeniedFilterKeepsOrder(t *testing.T) {
	f := newFixture(t, withACL(denyTopics{topics: map[string]bool{"secret": true}}))
	f.connect(t, packets.V5, "c1")

	err := f.conn.Received(subscribePacket(packets.V5, 3,
		packets.SubOption{Topic: "a", QoS: 0},
		packets.SubOption{Topic: "secret", QoS: 1},
		packets.SubOption{Topic: "b", QoS: 1},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	// The denied filter keeps its slot; the rest proceed.
	assert.Equal(t, []codes.Reason{
		codes.GrantedQoS0,
		codes.NotAuthorized,
		codes.GrantedQoS1,
	}, ack.ReasonCodes)

	require.Len(t, f.session.subscribed, 1)
	accepted := f.session.subscribed[0]
	require.Len(t, accepted, 2)
	assert.Equal(t, "a", accepted[0].Topic)
	assert.Equal(t, "b", accepted[1].Topic)
}

func TestSubscribeInvalidFilter(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V5, "c1")

	err := f.conn.Received(subscribePacket(packets.V5, 4,
		packets.SubOption{Topic: "a/#/b", QoS: 0},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	assert.Equal(t, []codes.Reason{codes.TopicFilterInvalid}, ack.ReasonCodes)
	assert.Empty(t, f.session.subscribed)
}

func TestSubscribeWildcardNotAllowed(t *testing.T) {
	zone := config.DefaultZone()
	zone.WildcardSubAvailable = false
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V5, "c1")

	err := f.conn.Received(subscribePacket(packets.V5, 5,
		packets.SubOption{Topic: "a/#", QoS: 0},
		packets.SubOption{Topic: "plain", QoS: 0},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	assert.Equal(t, codes.WildcardSubNotSupported, ack.ReasonCodes[0])
	assert.Equal(t, codes.GrantedQoS0, ack.ReasonCodes[1])
}

func TestSubscribeQoSClampedToZone(t *testing.T) {
	zone := config.DefaultZone()
	zone.MaxQoS = 1
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V5, "c1")

	err := f.conn.Received(subscribePacket(packets.V5, 6,
		packets.SubOption{Topic: "a", QoS: 2},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	assert.Equal(t, []codes.Reason{codes.GrantedQoS1}, ack.ReasonCodes)
	assert.Equal(t, byte(1), f.session.subscribed[0][0].QoS)
}

func TestSubscribeHookStop(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V5, "c1")
	f.bus.Add(hooks.ClientSubscribe, func(acc any, _ ...any) (any, bool) {
		return acc, true
	})

	err := f.conn.Received(subscribePacket(packets.V5, 7,
		packets.SubOption{Topic: "a", QoS: 0},
		packets.SubOption{Topic: "b", QoS: 1},
	))
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.SubAck)
	assert.Equal(t, []codes.Reason{
		codes.ImplementationSpecificError,
		codes.ImplementationSpecificError,
	}, ack.ReasonCodes)
	assert.Empty(t, f.session.subscribed)
}

func TestSubscribeMountpointPrefix(t *testing.T) {
	zone := config.DefaultZone()
	zone.Mountpoint = "u/%c/"
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V311, "alice")

	err := f.conn.Received(subscribePacket(packets.V311, 8,
		packets.SubOption{Topic: "t/#", QoS: 0},
	))
	require.NoError(t, err)

	require.Len(t, f.session.subscribed, 1)
	assert.Equal(t, "u/alice/t/#", f.session.subscribed[0][0].Topic)
}

func TestSubAckCompatV311(t *testing.T) {
	f := newFixture(t, withACL(denyTopics{topics: map[string]bool{"secret": true}}))
	f.connect(t, packets.V311, "c1")

	err := f.conn.Received(subscribePacket(packets.V311, 9,
		packets.SubOption{Topic: "a", QoS: 1},
		packets.SubOption{Topic: "secret", QoS: 1},
	))
	require.NoError(t, err)

	// Decode the raw frame: pre-5 return codes are granted QoS or 0x80.
	frame := f.sent[len(f.sent)-1]
	assert.Equal(t, byte(0x01), frame[len(frame)-2])
	assert.Equal(t, byte(0x80), frame[len(frame)-1])
}

func TestUnsubscribe(t *testing.T) {
	zone := config.DefaultZone()
	zone.Mountpoint = "u/%c/"
	f := newFixture(t, withZone(zone))
	f.connect(t, packets.V5, "alice")

	err := f.conn.Received(&packets.Unsubscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubscribeType, QoS: 1},
		Version:     packets.V5,
		ID:          12,
		Topics:      []string{"t"},
	})
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.UnSubAck)
	assert.Equal(t, uint16(12), ack.ID)
	require.Len(t, f.session.unsubscribed, 1)
	assert.Equal(t, []string{"u/alice/t"}, f.session.unsubscribed[0])
}

func TestUnsubscribeHookStop(t *testing.T) {
	f := newFixture(t)
	f.connect(t, packets.V5, "c1")
	f.bus.Add(hooks.ClientUnsubscribe, func(acc any, _ ...any) (any, bool) {
		return acc, true
	})

	err := f.conn.Received(&packets.Unsubscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubscribeType, QoS: 1},
		Version:     packets.V5,
		ID:          13,
		Topics:      []string{"t"},
	})
	require.NoError(t, err)

	ack := f.lastSent(t).(*packets.UnSubAck)
	assert.Equal(t, []codes.Reason{codes.ImplementationSpecificError}, ack.ReasonCodes)
	assert.Empty(t, f.session.unsubscribed)
}
