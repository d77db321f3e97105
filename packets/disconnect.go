// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
	"github.com/moziie/emqx/packets/codes"
)

// Disconnect is an internal representation of the fields of the DISCONNECT
// packet. Pre-5.0 the packet has no variable header; server-originated
// DISCONNECT does not exist at all before 5.0 and is suppressed upstream.
type Disconnect struct {
	FixedHeader
	Version    byte
	ReasonCode codes.Reason
	Properties *Properties
}

// Type returns the packet type.
func (pkt *Disconnect) Type() byte {
	return DisconnectType
}

func (pkt *Disconnect) String() string {
	return fmt.Sprintf("%s\nreason: %s", pkt.FixedHeader, pkt.ReasonCode)
}

// Encode serializes the packet for the connection's protocol version.
func (pkt *Disconnect) Encode() []byte {
	var body []byte
	if pkt.Version == V5 && (pkt.ReasonCode != codes.NormalDisconnection || pkt.Properties != nil) {
		body = append(body, byte(pkt.ReasonCode))
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Disconnect) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *Disconnect) Unpack(r io.Reader) error {
	if pkt.Version != V5 || pkt.RemainingLength == 0 {
		return nil
	}
	rc, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReasonCode = codes.Reason(rc)
	if pkt.RemainingLength <= 1 {
		return nil
	}
	pkt.Properties, err = unpackProperties(r)
	return err
}

// Auth is an internal representation of the MQTT 5.0 AUTH packet. The broker
// decodes it for completeness; enhanced authentication is negotiated upstream.
type Auth struct {
	FixedHeader
	ReasonCode codes.Reason
	Properties *Properties
}

// Type returns the packet type.
func (pkt *Auth) Type() byte {
	return AuthType
}

// Encode serializes the packet.
func (pkt *Auth) Encode() []byte {
	var body []byte
	if pkt.ReasonCode != codes.Success || pkt.Properties != nil {
		body = append(body, byte(pkt.ReasonCode))
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Auth) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *Auth) Unpack(r io.Reader) error {
	if pkt.RemainingLength == 0 {
		return nil
	}
	rc, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReasonCode = codes.Reason(rc)
	if pkt.RemainingLength <= 1 {
		return nil
	}
	pkt.Properties, err = unpackProperties(r)
	return err
}
