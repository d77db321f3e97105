// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/moziie/emqx/codec"
)

// MQTT 5.0 property identifiers.
const (
	PropPayloadFormat         byte = 0x01
	PropMessageExpiry         byte = 0x02
	PropContentType           byte = 0x03
	PropResponseTopic         byte = 0x08
	PropCorrelationData       byte = 0x09
	PropSubscriptionID        byte = 0x0B
	PropSessionExpiryInterval byte = 0x11
	PropAssignedClientID      byte = 0x12
	PropServerKeepAlive       byte = 0x13
	PropAuthMethod            byte = 0x15
	PropAuthData              byte = 0x16
	PropRequestProblemInfo    byte = 0x17
	PropWillDelayInterval     byte = 0x18
	PropRequestResponseInfo   byte = 0x19
	PropResponseInfo          byte = 0x1A
	PropServerReference       byte = 0x1C
	PropReasonString          byte = 0x1F
	PropReceiveMaximum        byte = 0x21
	PropTopicAliasMaximum     byte = 0x22
	PropTopicAlias            byte = 0x23
	PropMaximumQoS            byte = 0x24
	PropRetainAvailable       byte = 0x25
	PropUserProperty          byte = 0x26
	PropMaximumPacketSize     byte = 0x27
	PropWildcardSubAvailable  byte = 0x28
	PropSubIDAvailable        byte = 0x29
	PropSharedSubAvailable    byte = 0x2A
)

// User is a single user property key/value pair.
type User struct {
	Key   string
	Value string
}

// Properties holds the MQTT 5.0 properties the broker reads or writes.
// Pointer fields distinguish absent from zero.
type Properties struct {
	PayloadFormat         *byte
	MessageExpiry         *uint32
	ContentType           string
	ResponseTopic         string
	CorrelationData       []byte
	SessionExpiryInterval *uint32
	AssignedClientID      string
	ServerKeepAlive       *uint16
	AuthMethod            string
	AuthData              []byte
	RequestProblemInfo    *byte
	WillDelayInterval     *uint32
	RequestResponseInfo   *byte
	ResponseInfo          string
	ServerReference       string
	ReasonString          string
	ReceiveMaximum        *uint16
	TopicAliasMaximum     *uint16
	TopicAlias            *uint16
	MaximumQoS            *byte
	RetainAvailable       *byte
	UserProperties        []User
	MaximumPacketSize     *uint32
	WildcardSubAvailable  *byte
	SubIDAvailable        *byte
	SharedSubAvailable    *byte
}

// Encode serializes the property block without the leading length VBI.
func (p *Properties) Encode() []byte {
	var ret []byte
	if p == nil {
		return ret
	}
	if p.PayloadFormat != nil {
		ret = append(ret, PropPayloadFormat, *p.PayloadFormat)
	}
	if p.MessageExpiry != nil {
		ret = append(ret, PropMessageExpiry)
		ret = append(ret, codec.EncodeUint32(*p.MessageExpiry)...)
	}
	if p.ContentType != "" {
		ret = append(ret, PropContentType)
		ret = append(ret, codec.EncodeString(p.ContentType)...)
	}
	if p.ResponseTopic != "" {
		ret = append(ret, PropResponseTopic)
		ret = append(ret, codec.EncodeString(p.ResponseTopic)...)
	}
	if p.CorrelationData != nil {
		ret = append(ret, PropCorrelationData)
		ret = append(ret, codec.EncodeBytes(p.CorrelationData)...)
	}
	if p.SessionExpiryInterval != nil {
		ret = append(ret, PropSessionExpiryInterval)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.AssignedClientID != "" {
		ret = append(ret, PropAssignedClientID)
		ret = append(ret, codec.EncodeString(p.AssignedClientID)...)
	}
	if p.ServerKeepAlive != nil {
		ret = append(ret, PropServerKeepAlive)
		ret = append(ret, codec.EncodeUint16(*p.ServerKeepAlive)...)
	}
	if p.AuthMethod != "" {
		ret = append(ret, PropAuthMethod)
		ret = append(ret, codec.EncodeString(p.AuthMethod)...)
	}
	if p.AuthData != nil {
		ret = append(ret, PropAuthData)
		ret = append(ret, codec.EncodeBytes(p.AuthData)...)
	}
	if p.RequestProblemInfo != nil {
		ret = append(ret, PropRequestProblemInfo, *p.RequestProblemInfo)
	}
	if p.WillDelayInterval != nil {
		ret = append(ret, PropWillDelayInterval)
		ret = append(ret, codec.EncodeUint32(*p.WillDelayInterval)...)
	}
	if p.RequestResponseInfo != nil {
		ret = append(ret, PropRequestResponseInfo, *p.RequestResponseInfo)
	}
	if p.ResponseInfo != "" {
		ret = append(ret, PropResponseInfo)
		ret = append(ret, codec.EncodeString(p.ResponseInfo)...)
	}
	if p.ServerReference != "" {
		ret = append(ret, PropServerReference)
		ret = append(ret, codec.EncodeString(p.ServerReference)...)
	}
	if p.ReasonString != "" {
		ret = append(ret, PropReasonString)
		ret = append(ret, codec.EncodeString(p.ReasonString)...)
	}
	if p.ReceiveMaximum != nil {
		ret = append(ret, PropReceiveMaximum)
		ret = append(ret, codec.EncodeUint16(*p.ReceiveMaximum)...)
	}
	if p.TopicAliasMaximum != nil {
		ret = append(ret, PropTopicAliasMaximum)
		ret = append(ret, codec.EncodeUint16(*p.TopicAliasMaximum)...)
	}
	if p.TopicAlias != nil {
		ret = append(ret, PropTopicAlias)
		ret = append(ret, codec.EncodeUint16(*p.TopicAlias)...)
	}
	if p.MaximumQoS != nil {
		ret = append(ret, PropMaximumQoS, *p.MaximumQoS)
	}
	if p.RetainAvailable != nil {
		ret = append(ret, PropRetainAvailable, *p.RetainAvailable)
	}
	for _, u := range p.UserProperties {
		ret = append(ret, PropUserProperty)
		ret = append(ret, codec.EncodeString(u.Key)...)
		ret = append(ret, codec.EncodeString(u.Value)...)
	}
	if p.MaximumPacketSize != nil {
		ret = append(ret, PropMaximumPacketSize)
		ret = append(ret, codec.EncodeUint32(*p.MaximumPacketSize)...)
	}
	if p.WildcardSubAvailable != nil {
		ret = append(ret, PropWildcardSubAvailable, *p.WildcardSubAvailable)
	}
	if p.SubIDAvailable != nil {
		ret = append(ret, PropSubIDAvailable, *p.SubIDAvailable)
	}
	if p.SharedSubAvailable != nil {
		ret = append(ret, PropSharedSubAvailable, *p.SharedSubAvailable)
	}
	return ret
}

// EncodeWithLength serializes the property block prefixed with its length VBI.
func (p *Properties) EncodeWithLength() []byte {
	props := p.Encode()
	return append(codec.EncodeVBI(len(props)), props...)
}

// Unpack reads a property block (without the leading length VBI) from r.
func (p *Properties) Unpack(r *bytes.Buffer) error {
	for r.Len() > 0 {
		id, err := codec.DecodeByte(r)
		if err != nil {
			return err
		}
		switch id {
		case PropPayloadFormat:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.PayloadFormat = &b
		case PropMessageExpiry:
			v, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MessageExpiry = &v
		case PropContentType:
			if p.ContentType, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropResponseTopic:
			if p.ResponseTopic, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropCorrelationData:
			if p.CorrelationData, err = codec.DecodeBytes(r); err != nil {
				return err
			}
		case PropSessionExpiryInterval:
			v, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.SessionExpiryInterval = &v
		case PropAssignedClientID:
			if p.AssignedClientID, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropServerKeepAlive:
			v, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ServerKeepAlive = &v
		case PropAuthMethod:
			if p.AuthMethod, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropAuthData:
			if p.AuthData, err = codec.DecodeBytes(r); err != nil {
				return err
			}
		case PropRequestProblemInfo:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestProblemInfo = &b
		case PropWillDelayInterval:
			v, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.WillDelayInterval = &v
		case PropRequestResponseInfo:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestResponseInfo = &b
		case PropResponseInfo:
			if p.ResponseInfo, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropServerReference:
			if p.ServerReference, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropReasonString:
			if p.ReasonString, err = codec.DecodeString(r); err != nil {
				return err
			}
		case PropReceiveMaximum:
			v, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ReceiveMaximum = &v
		case PropTopicAliasMaximum:
			v, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAliasMaximum = &v
		case PropTopicAlias:
			v, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAlias = &v
		case PropMaximumQoS:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.MaximumQoS = &b
		case PropRetainAvailable:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RetainAvailable = &b
		case PropUserProperty:
			k, err := codec.DecodeString(r)
			if err != nil {
				return err
			}
			v, err := codec.DecodeString(r)
			if err != nil {
				return err
			}
			p.UserProperties = append(p.UserProperties, User{Key: k, Value: v})
		case PropMaximumPacketSize:
			v, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MaximumPacketSize = &v
		case PropWildcardSubAvailable:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.WildcardSubAvailable = &b
		case PropSubIDAvailable:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SubIDAvailable = &b
		case PropSharedSubAvailable:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SharedSubAvailable = &b
		case PropSubscriptionID:
			if _, err := codec.DecodeVBI(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown property identifier 0x%x", id)
		}
	}
	return nil
}

// unpackProperties reads a length-prefixed property block from r.
func unpackProperties(r io.Reader) (*Properties, error) {
	p, _, err := unpackPropertiesN(r)
	return p, err
}

// unpackPropertiesN reads a length-prefixed property block and also returns
// the number of bytes consumed, length prefix included.
func unpackPropertiesN(r io.Reader) (*Properties, int, error) {
	length, err := codec.DecodeVBI(r)
	if err != nil {
		return nil, 0, err
	}
	consumed := len(codec.EncodeVBI(length)) + length
	if length == 0 {
		return nil, consumed, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, err
	}
	p := &Properties{}
	if err := p.Unpack(bytes.NewBuffer(buf)); err != nil {
		return nil, 0, err
	}
	return p, consumed, nil
}
