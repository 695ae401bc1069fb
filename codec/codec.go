// Package codec turns messages into their wire representation and back.
//
// The encoded form of a message is a Packet: a JSON array whose positions are fixed.
//
//	request:  ["<", resource, id, date, headers, body, method]
//	response: [">", resource, id, date, headers, body, status]
//
// Keeping each field separately encoded lets the client compare two requests field by
// field while ignoring the correlation id (position 2).
package codec

import (
	"bytes"
	"encoding/json"
	"errors"

	"bunkr-rpc/message"
)

// Field positions inside a Packet.
const (
	FieldType     = 0
	FieldResource = 1
	FieldID       = 2
	FieldDate     = 3
	FieldHeaders  = 4
	FieldBody     = 5
	FieldTail     = 6 // method on requests, status on responses
	packetLen     = 7
)

var (
	ErrMalformed   = errors.New("codec: malformed message")
	ErrUnknownType = errors.New("codec: unknown message type")
)

type CodecType byte

const (
	CodecTypeSJMP CodecType = 0
)

// Codec is the serialize/deserialize contract consumed by the session and the client.
type Codec interface {
	Encode(msg *message.Message) (Packet, error)
	Decode(data []byte) (*message.Message, error)
	Type() CodecType
}

// GetCodec returns the codec for the given type. SJMP is the only wire format.
func GetCodec(codecType CodecType) Codec {
	return &SJMPCodec{}
}

// Packet is an encoded message, one raw JSON value per field.
type Packet []json.RawMessage

// Type returns the direction marker, or "" if the packet is malformed.
func (p Packet) Type() message.Type {
	return message.Type(p.str(FieldType))
}

// Resource returns the resource path.
func (p Packet) Resource() string {
	return p.str(FieldResource)
}

// ID returns the correlation id.
func (p Packet) ID() string {
	return p.str(FieldID)
}

// Bytes renders the packet as the JSON array written to the transport.
func (p Packet) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(f) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(f)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// SameCall reports whether p and o are equal in every field except the correlation id.
// Fields are compared by their encoded bytes; Encode canonicalizes the body so that
// equal JSON values compare equal whatever Go type produced them.
func (p Packet) SameCall(o Packet) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if i == FieldID {
			continue
		}
		if !bytes.Equal(p[i], o[i]) {
			return false
		}
	}
	return true
}

func (p Packet) str(i int) string {
	if i >= len(p) {
		return ""
	}
	var s string
	if err := json.Unmarshal(p[i], &s); err != nil {
		return ""
	}
	return s
}
