// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
	"github.com/moziie/emqx/packets/codes"
)

// SubOption is a single topic filter with its subscription options.
type SubOption struct {
	Topic             string
	QoS               byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

// Subscribe is an internal representation of the fields of the SUBSCRIBE packet.
type Subscribe struct {
	FixedHeader
	Version    byte
	ID         uint16
	Properties *Properties
	Topics     []SubOption
}

// Type returns the packet type.
func (pkt *Subscribe) Type() byte {
	return SubscribeType
}

func (pkt *Subscribe) String() string {
	return fmt.Sprintf("%s\npacket_id: %d topics: %d", pkt.FixedHeader, pkt.ID, len(pkt.Topics))
}

// Encode serializes the packet. Used by tests and client tooling.
func (pkt *Subscribe) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeUint16(pkt.ID)...)
	if pkt.Version == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	for _, t := range pkt.Topics {
		body = append(body, codec.EncodeString(t.Topic)...)
		opts := t.QoS
		if pkt.Version == V5 {
			if t.NoLocal {
				opts |= 0x04
			}
			if t.RetainAsPublished {
				opts |= 0x08
			}
			opts |= t.RetainHandling << 4
		}
		body = append(body, opts)
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Subscribe) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *Subscribe) Unpack(r io.Reader) error {
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
		opts, err := codec.DecodeByte(r)
		if err != nil {
			return err
		}
		consumed += 2 + len(topic) + 1

		pkt.Topics = append(pkt.Topics, SubOption{
			Topic:             topic,
			QoS:               opts & 0x03,
			NoLocal:           opts&0x04 != 0,
			RetainAsPublished: opts&0x08 != 0,
			RetainHandling:    (opts & 0x30) >> 4,
		})
	}
	if len(pkt.Topics) == 0 {
		return ErrProtocolViolation
	}
	return nil
}

// SubAck is an internal representation of the fields of the SUBACK packet.
// ReasonCodes are MQTT 5.0 codes; pre-5.0 encoding translates each through
// the compatibility table.
type SubAck struct {
	FixedHeader
	Version     byte
	ID          uint16
	Properties  *Properties
	ReasonCodes []codes.Reason
}

// Type returns the packet type.
func (pkt *SubAck) Type() byte {
	return SubAckType
}

func (pkt *SubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d codes: %v", pkt.FixedHeader, pkt.ID, pkt.ReasonCodes)
}

// Encode serializes the packet for the connection's protocol version.
func (pkt *SubAck) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeUint16(pkt.ID)...)
	if pkt.Version == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
		for _, rc := range pkt.ReasonCodes {
			body = append(body, byte(rc))
		}
	} else {
		for _, rc := range pkt.ReasonCodes {
			body = append(body, codes.CompatSubAck(rc))
		}
	}

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *SubAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r.
func (pkt *SubAck) Unpack(r io.Reader) error {
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
		rc, err := codec.DecodeByte(r)
		if err != nil {
			return err
		}
		pkt.ReasonCodes = append(pkt.ReasonCodes, codes.Reason(rc))
		consumed++
	}
	return nil
}
