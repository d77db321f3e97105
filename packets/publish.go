// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
)

// Publish is an internal representation of the fields of the PUBLISH packet.
type Publish struct {
	FixedHeader
	Version    byte
	TopicName  string
	ID         uint16
	Properties *Properties
	Payload    []byte
}

// Type returns the packet type.
func (pkt *Publish) Type() byte {
	return PublishType
}

func (pkt *Publish) String() string {
	return fmt.Sprintf("%s\ntopic: %s packet_id: %d payload: %d bytes",
		pkt.FixedHeader, pkt.TopicName, pkt.ID, len(pkt.Payload))
}

// Encode serializes the packet for the connection's protocol version.
func (pkt *Publish) Encode() []byte {
	var body []byte
	body = append(body, codec.EncodeString(pkt.TopicName)...)
	if pkt.QoS > 0 {
		body = append(body, codec.EncodeUint16(pkt.ID)...)
	}
	if pkt.Version == V5 {
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	body = append(body, pkt.Payload...)

	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

// Pack writes the serialized packet to w.
func (pkt *Publish) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

// Unpack decodes the packet body from r. The body length comes from the
// fixed header; the payload is whatever remains after the variable header.
func (pkt *Publish) Unpack(r io.Reader) error {
	var err error
	consumed := 0
	if pkt.TopicName, err = codec.DecodeString(r); err != nil {
		return err
	}
	consumed += 2 + len(pkt.TopicName)

	if pkt.QoS > 0 {
		if pkt.ID, err = codec.DecodeUint16(r); err != nil {
			return err
		}
		consumed += 2
	}

	if pkt.Version == V5 {
		length, err := codec.DecodeVBI(r)
		if err != nil {
			return err
		}
		consumed += len(codec.EncodeVBI(length)) + length
		if length > 0 {
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			pkt.Properties = &Properties{}
			if err := pkt.Properties.Unpack(bytes.NewBuffer(buf)); err != nil {
				return err
			}
		}
	}

	remaining := pkt.RemainingLength - consumed
	if remaining < 0 {
		return ErrProtocolViolation
	}
	pkt.Payload = make([]byte, remaining)
	if _, err := io.ReadFull(r, pkt.Payload); err != nil {
		return err
	}
	return nil
}
