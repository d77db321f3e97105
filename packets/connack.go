// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
	"github.com/moziie/emqx/packets/codes"
)

// ConnAck is an internal representation of the fields of the CONNACK packet.
// Version selects the wire form: pre-5.0 clients receive the translated
// return code and no properties.
type ConnAck struct {
	FixedHeader
	Version        byte
	SessionPresent bool
	ReasonCode     codes.Reason
	Properties     *Properties
}

// Type returns the packet type.
func (pkt *ConnAck) Type() byte {
	return ConnAckType
}

func (pkt *ConnAck) String() string {
	return fmt.Sprintf("%s\nsession_present: %t reason: %s", pkt.FixedHeader, pkt.SessionPresent, pkt.ReasonCode)
}

// Encode serializes the packet for the connection's protocol version.
func (pkt *ConnAck) Encode() []byte {
	var body []byte
	var ackFlags byte
	if pkt.SessionPresent {
		ackFlags = 0x01
	}
	body = append(body, ackFlags)

	if pkt.Version == V5 {
		body = append(body, byte(pkt.ReasonCode))
		body = append(body, pkt.Properties.EncodeWithLength()...)
	} else {
		body = append(body, codes.CompatConnAck(pkt.ReasonCode))
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *ConnAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *ConnAck) Unpack(r io.Reader) error {
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.SessionPresent = flags&0x01 != 0

	rc, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReasonCode = codes.Reason(rc)

	if pkt.Version == V5 {
		if pkt.Properties, err = unpackProperties(r); err != nil {
			return err
		}
	}
	return nil
}
