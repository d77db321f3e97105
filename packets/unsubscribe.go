// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
	"github.com/moziie/emqx/packets/codes"
)

// Unsubscribe is an internal representation of the fields of the UNSUBSCRIBE packet.
type Unsubscribe struct {
	FixedHeader
	Version    byte
	ID         uint16
	Properties *Properties
	Topics     []string
}

// Type returns the packet type.
func (pkt *Unsubscribe) Type() byte {
	return UnsubscribeType
}

func (pkt *Unsubscribe) String() string {
	return fmt.Sprintf("%s\npacket_id: %d topics: %v", pkt.FixedHeader, pkt.ID, pkt.Topics)
}

// Encode serializes the packet. Used by tests and client tooling.
func (pkt *Unsubscribe) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeUint16(pkt.ID)...)
	if pkt.Version == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	for _, t := range pkt.Topics {
		body = append(body, codec.EncodeString(t)...)
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Unsubscribe) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *Unsubscribe) Unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	consumed := 2
	if pkt.Version == V5 {
		props, n, err := unpackPropertiesN(r)
		if err != nil {
			return err
		}
		pkt.Properties = props
		consumed += n
	}
	for consumed < pkt.RemainingLength {
		topic, err := codec.DecodeString(r)
		if err != nil {
			return err
		}
		pkt.Topics = append(pkt.Topics, topic)
		consumed += 2 + len(topic)
	}
	if len(pkt.Topics) == 0 {
		return ErrProtocolViolation
	}
	return nil
}

// UnSubAck is an internal representation of the fields of the UNSUBACK packet.
// Pre-5.0 the packet carries no payload.
type UnSubAck struct {
	FixedHeader
	Version     byte
	ID          uint16
	Properties  *Properties
	ReasonCodes []codes.Reason
}

// Type returns the packet type.
func (pkt *UnSubAck) Type() byte {
	return UnsubAckType
}

func (pkt *UnSubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d codes: %v", pkt.FixedHeader, pkt.ID, pkt.ReasonCodes)
}

// Encode serializes the packet for the connection's protocol version.
func (pkt *UnSubAck) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeUint16(pkt.ID)...)
	if pkt.Version == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
		for _, rc := range pkt.ReasonCodes {
			body = append(body, byte(rc))
		}
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *UnSubAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *UnSubAck) Unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	consumed := 2
	if pkt.Version != V5 {
		return nil
	}
	props, n, err := unpackPropertiesN(r)
	if err != nil {
		return err
	}
	pkt.Properties = props
	consumed += n
	for consumed < pkt.RemainingLength {
		rc, err := codec.DecodeByte(r)
		if err != nil {
			return err
		}
		pkt.ReasonCodes = append(pkt.ReasonCodes, codes.Reason(rc))
		consumed++
	}
	return nil
}
