// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
)

// Seed carries the initial framer state handed out by the protocol engine:
// the negotiated version and the zone's packet size limit.
type Seed struct {
	Version       byte
	MaxPacketSize uint32
}

// Framer reads MQTT control packets from a byte stream. The first packet on
// a fresh connection must be CONNECT; decoding it fixes the protocol version
// for the rest of the stream.
type Framer struct {
	r       io.Reader
	version byte
	maxSize uint32
}

// NewFramer creates a framer over r with the given seed.
func NewFramer(r io.Reader, seed Seed) *Framer {
	return &Framer{
		r:       r,
		version: seed.Version,
		maxSize: seed.MaxPacketSize,
	}
}

// Reseed updates the framer after a successful handshake.
func (f *Framer) Reseed(seed Seed) {
	f.version = seed.Version
	f.maxSize = seed.MaxPacketSize
}

// Version returns the protocol version the framer decodes with.
func (f *Framer) Version() byte {
	return f.version
}

// ReadPacket reads and decodes the next control packet.
func (f *Framer) ReadPacket() (ControlPacket, error) {
	b, err := codec.DecodeByte(f.r)
	if err != nil {
		return nil, err
	}
	var fh FixedHeader
	if err := fh.Decode(b); err != nil {
		return nil, err
	}

	length, err := codec.DecodeVBI(f.r)
	if err != nil {
		return nil, err
	}
	fh.RemainingLength = length
	if f.maxSize > 0 && uint32(length) > f.maxSize {
		return nil, ErrPacketTooLarge
	}

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(f.r, body); err != nil {
			return nil, err
		}
	}

	pkt, err := f.decode(fh, body)
	if err != nil {
		return nil, err
	}

	if c, ok := pkt.(*Connect); ok {
		// The CONNECT variable header fixes the stream version.
		f.version = c.ProtocolVersion
	}
	return pkt, nil
}

func (f *Framer) decode(fh FixedHeader, body []byte) (ControlPacket, error) {
	r := bytes.NewBuffer(body)
	switch fh.PacketType {
	case ConnectType:
		pkt := &Connect{FixedHeader: fh}
		return pkt, pkt.Unpack(r)
	case ConnAckType:
		pkt := &ConnAck{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case PublishType:
		pkt := &Publish{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case PubAckType:
		pkt := &PubAck{ack{FixedHeader: fh, Version: f.version}}
		return pkt, pkt.Unpack(r)
	case PubRecType:
		pkt := &PubRec{ack{FixedHeader: fh, Version: f.version}}
		return pkt, pkt.Unpack(r)
	case PubRelType:
		pkt := &PubRel{ack{FixedHeader: fh, Version: f.version}}
		return pkt, pkt.Unpack(r)
	case PubCompType:
		pkt := &PubComp{ack{FixedHeader: fh, Version: f.version}}
		return pkt, pkt.Unpack(r)
	case SubscribeType:
		pkt := &Subscribe{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case SubAckType:
		pkt := &SubAck{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case UnsubscribeType:
		pkt := &Unsubscribe{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case UnsubAckType:
		pkt := &UnSubAck{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case PingReqType:
		return &PingReq{FixedHeader: fh}, nil
	case PingRespType:
		return &PingResp{FixedHeader: fh}, nil
	case DisconnectType:
		pkt := &Disconnect{FixedHeader: fh, Version: f.version}
		return pkt, pkt.Unpack(r)
	case AuthType:
		if f.version != V5 {
			return nil, fmt.Errorf("%w: AUTH before MQTT 5.0", ErrProtocolViolation)
		}
		pkt := &Auth{FixedHeader: fh}
		return pkt, pkt.Unpack(r)
	default:
		return nil, ErrInvalidPacketType
	}
}
