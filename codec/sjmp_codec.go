package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"bunkr-rpc/message"
)

// SJMPCodec encodes messages as fixed-position JSON arrays.
// Bodies are re-encoded through a generic JSON value, so a struct, a map and raw JSON
// describing the same object all encode to the same bytes.
type SJMPCodec struct{}

func (c *SJMPCodec) Encode(msg *message.Message) (Packet, error) {
	if msg == nil {
		return nil, ErrMalformed
	}
	if msg.Type != message.TypeRequest && msg.Type != message.TypeResponse {
		return nil, fmt.Errorf("%w: type %q", ErrMalformed, msg.Type)
	}
	if msg.Resource == "" {
		return nil, fmt.Errorf("%w: empty resource", ErrMalformed)
	}

	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	var tail any = msg.Method
	if msg.Type == message.TypeResponse {
		tail = msg.Status
	}

	values := [packetLen]any{msg.Type, msg.Resource, msg.ID, msg.Date, headers, msg.Body, tail}
	p := make(Packet, packetLen)
	for i, v := range values {
		raw, err := marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
		}
		p[i] = raw
	}
	body, err := canonical(p[FieldBody])
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	p[FieldBody] = body
	return p, nil
}

func (c *SJMPCodec) Decode(data []byte) (*message.Message, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// Type, resource and id are mandatory; the rest may be omitted by the peer.
	if len(p) < FieldDate {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformed, len(p))
	}

	msg := &message.Message{
		Type:     p.Type(),
		Resource: p.Resource(),
		ID:       p.ID(),
	}
	if msg.Type != message.TypeRequest && msg.Type != message.TypeResponse {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	if len(p) > FieldDate && !isNull(p[FieldDate]) {
		if err := json.Unmarshal(p[FieldDate], &msg.Date); err != nil {
			return nil, fmt.Errorf("%w: date: %v", ErrMalformed, err)
		}
	}
	if len(p) > FieldHeaders && !isNull(p[FieldHeaders]) {
		if err := json.Unmarshal(p[FieldHeaders], &msg.Headers); err != nil {
			return nil, fmt.Errorf("%w: headers: %v", ErrMalformed, err)
		}
	}
	if len(p) > FieldBody && !isNull(p[FieldBody]) {
		msg.Body = p[FieldBody]
	}
	if len(p) > FieldTail && !isNull(p[FieldTail]) {
		var err error
		if msg.Type == message.TypeResponse {
			err = json.Unmarshal(p[FieldTail], &msg.Status)
		} else {
			err = json.Unmarshal(p[FieldTail], &msg.Method)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: tail: %v", ErrMalformed, err)
		}
	}
	return msg, nil
}

func (c *SJMPCodec) Type() CodecType {
	return CodecTypeSJMP
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// marshal encodes v without HTML escaping so "<" and ">" stay readable on the wire.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonical re-encodes raw with sorted object keys and no insignificant whitespace.
// Numbers keep their literal spelling.
func canonical(raw json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return marshal(v)
}
