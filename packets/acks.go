// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
	"github.com/moziie/emqx/packets/codes"
)

// ack carries the common shape of PUBACK, PUBREC, PUBREL and PUBCOMP.
// Pre-5.0 the body is the packet identifier alone; 5.0 appends a reason
// code and properties, both omitted when the reason is Success and no
// properties are set.
type ack struct {
	FixedHeader
	Version    byte
	ID         uint16
	ReasonCode codes.Reason
	Properties *Properties
}

func (pkt *ack) String() string {
	return fmt.Sprintf("%s\npacket_id: %d reason: %s", pkt.FixedHeader, pkt.ID, pkt.ReasonCode)
}

func (pkt *ack) encode() []byte {
	body := codec.EncodeUint16(pkt.ID)
	if pkt.Version == V5 && (pkt.ReasonCode != codes.Success || pkt.Properties != nil) {
		body = append(body, byte(pkt.ReasonCode))
		body = append(body, pkt.Properties.EncodeWithLength()...)
	}
	pkt.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *ack) unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	if pkt.Version != V5 || pkt.RemainingLength <= 2 {
		return nil
	}
	rc, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReasonCode = codes.Reason(rc)
	if pkt.RemainingLength <= 3 {
		return nil
	}
	pkt.Properties, err = unpackProperties(r)
	return err
}

// PubAck is an internal representation of the fields of the PUBACK packet.
type PubAck struct{ ack }

// NewPubAck builds a PUBACK for the given version.
func NewPubAck(version byte, id uint16, reason codes.Reason) *PubAck {
	return &PubAck{ack{
		FixedHeader: FixedHeader{PacketType: PubAckType},
		Version:     version,
		ID:          id,
		ReasonCode:  reason,
	}}
}

func (pkt *PubAck) Type() byte { return PubAckType }
func (pkt *PubAck) Encode() []byte { return pkt.encode() }
func (pkt *PubAck) Pack(w io.Writer) error { _, err := w.Write(pkt.Encode()); return err }
func (pkt *PubAck) Unpack(r io.Reader) error { return pkt.unpack(r) }

// PubRec is an internal representation of the fields of the PUBREC packet.
type PubRec struct{ ack }

// NewPubRec builds a PUBREC for the given version.
func NewPubRec(version byte, id uint16, reason codes.Reason) *PubRec {
	return &PubRec{ack{
		FixedHeader: FixedHeader{PacketType: PubRecType},
		Version:     version,
		ID:          id,
		ReasonCode:  reason,
	}}
}

func (pkt *PubRec) Type() byte { return PubRecType }
func (pkt *PubRec) Encode() []byte { return pkt.encode() }
func (pkt *PubRec) Pack(w io.Writer) error { _, err := w.Write(pkt.Encode()); return err }
func (pkt *PubRec) Unpack(r io.Reader) error { return pkt.unpack(r) }

// PubRel is an internal representation of the fields of the PUBREL packet.
type PubRel struct{ ack }

// NewPubRel builds a PUBREL for the given version.
func NewPubRel(version byte, id uint16, reason codes.Reason) *PubRel {
	return &PubRel{ack{
		FixedHeader: FixedHeader{PacketType: PubRelType, QoS: 1},
		Version:     version,
		ID:          id,
		ReasonCode:  reason,
	}}
}

func (pkt *PubRel) Type() byte { return PubRelType }
func (pkt *PubRel) Encode() []byte { return pkt.encode() }
func (pkt *PubRel) Pack(w io.Writer) error { _, err := w.Write(pkt.Encode()); return err }
func (pkt *PubRel) Unpack(r io.Reader) error { return pkt.unpack(r) }

// PubComp is an internal representation of the fields of the PUBCOMP packet.
type PubComp struct{ ack }

// NewPubComp builds a PUBCOMP for the given version.
func NewPubComp(version byte, id uint16, reason codes.Reason) *PubComp {
	return &PubComp{ack{
		FixedHeader: FixedHeader{PacketType: PubCompType},
		Version:     version,
		ID:          id,
		ReasonCode:  reason,
	}}
}

func (pkt *PubComp) Type() byte { return PubCompType }
func (pkt *PubComp) Encode() []byte { return pkt.encode() }
func (pkt *PubComp) Pack(w io.Writer) error { _, err := w.Write(pkt.Encode()); return err }
func (pkt *PubComp) Unpack(r io.Reader) error { return pkt.unpack(r) }
