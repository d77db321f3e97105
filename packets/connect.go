// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
)

// Connect is an internal representation of the fields of the CONNECT packet.
// The 0x80 bit of the on-wire protocol version marks a bridge connection;
// it is stripped into IsBridge during decoding.
type Connect struct {
	FixedHeader
	// Variable header
	ProtocolName    string
	ProtocolVersion byte
	CleanStart      bool
	WillFlag        bool
	WillQoS         byte
	WillRetain      bool
	UsernameFlag    bool
	PasswordFlag    bool
	ReservedBit     byte
	KeepAlive       uint16
	Properties      *Properties
	// Payload
	ClientID       string
	WillProperties *Properties
	WillTopic      string
	WillPayload    []byte
	Username       string
	Password       []byte

	IsBridge bool
}

// Type returns the packet type.
func (pkt *Connect) Type() byte {
	return ConnectType
}

func (pkt *Connect) String() string {
	return fmt.Sprintf("%s\nproto: %s v%d client_id: %s clean_start: %t keepalive: %d",
		pkt.FixedHeader, pkt.ProtocolName, pkt.ProtocolVersion, pkt.ClientID, pkt.CleanStart, pkt.KeepAlive)
}

// Encode serializes the packet. Used by tests and client tooling; the broker
// itself only decodes CONNECT.
func (pkt *Connect) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeString(pkt.ProtocolName)...)
	ver := pkt.ProtocolVersion
	if pkt.IsBridge {
		ver |= 0x80
	}
	body = append(body, ver)

	var flags byte
	if pkt.CleanStart {
		flags |= 0x02
	}
	if pkt.WillFlag {
		flags |= 0x04
		flags |= pkt.WillQoS << 3
		if pkt.WillRetain {
			flags |= 0x20
		}
	}
	if pkt.PasswordFlag {
		flags |= 0x40
	}
	if pkt.UsernameFlag {
		flags |= 0x80
	}
	body = append(body, flags)
	body = append(body, codec.EncodeUint16(pkt.KeepAlive)...)

	if pkt.ProtocolVersion == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}

	body = append(body, codec.EncodeString(pkt.ClientID)...)
	if pkt.WillFlag {
		if pkt.ProtocolVersion == V5 {
			body = append(body, pkt.WillProperties.EncodeWithLength()...)
		}
		body = append(body, codec.EncodeString(pkt.WillTopic)...)
		body = append(body, codec.EncodeBytes(pkt.WillPayload)...)
	}
	if pkt.UsernameFlag {
		body = append(body, codec.EncodeString(pkt.Username)...)
	}
	if pkt.PasswordFlag {
		body = append(body, codec.EncodeBytes(pkt.Password)...)
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Connect) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *Connect) Unpack(r io.Reader) error {
	var err error
	if pkt.ProtocolName, err = codec.DecodeString(r); err != nil {
		return err
	}
	ver, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ProtocolVersion = ver & 0x7F
	pkt.IsBridge = ver&0x80 != 0

	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReservedBit = flags & 0x01
	pkt.CleanStart = flags&0x02 != 0
	pkt.WillFlag = flags&0x04 != 0
	pkt.WillQoS = (flags & 0x18) >> 3
	pkt.WillRetain = flags&0x20 != 0
	pkt.PasswordFlag = flags&0x40 != 0
	pkt.UsernameFlag = flags&0x80 != 0

	if pkt.KeepAlive, err = codec.DecodeUint16(r); err != nil {
		return err
	}

	if pkt.ProtocolVersion == V5 {
		if pkt.Properties, err = unpackProperties(r); err != nil {
			return err
		}
	}

	if pkt.ClientID, err = codec.DecodeString(r); err != nil {
		return err
	}
	if pkt.WillFlag {
		if pkt.ProtocolVersion == V5 {
			if pkt.WillProperties, err = unpackProperties(r); err != nil {
				return err
			}
		}
		if pkt.WillTopic, err = codec.DecodeString(r); err != nil {
			return err
		}
		if pkt.WillPayload, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}
	if pkt.UsernameFlag {
		if pkt.Username, err = codec.DecodeString(r); err != nil {
			return err
		}
	}
	if pkt.PasswordFlag {
		if pkt.Password, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}
	return nil
}
