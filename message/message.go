// Package message defines the envelope exchanged between the client and the server.
//
// A Message is either a request ("<") created by the client or a response (">") decoded
// from the wire. Responses carry the same ID as the request they answer, which is how the
// client matches them regardless of arrival order.
package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Type is the direction marker of a message.
type Type string

const (
	TypeRequest  Type = "<" // Client → Server
	TypeResponse Type = ">" // Server → Client
)

// Verb is the request method.
type Verb string

const (
	VerbGet    Verb = "get"
	VerbSearch Verb = "search"
	VerbPost   Verb = "post"
	VerbPut    Verb = "put"
	VerbDelete Verb = "delete"
)

// Message carries a single request or response.
//
//   - On request:  Method is set, Status is zero.
//   - On response: Status is set; Method is empty.
type Message struct {
	Type     Type
	Method   Verb
	Resource string            // e.g. "users/1"
	ID       string            // Correlation id, unique per outstanding request
	Date     int64             // Optional timestamp (milliseconds), 0 if unset
	Headers  map[string]string // Optional headers
	Body     any               // Decoded responses hold a json.RawMessage
	Status   int
}

// NewRequest builds a request message for the given verb and resource.
func NewRequest(verb Verb, resource string, body any) *Message {
	return &Message{
		Type:     TypeRequest,
		Method:   verb,
		Resource: resource,
		Headers:  map[string]string{},
		Body:     body,
	}
}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// IsRequest reports whether m travels client → server.
func (m *Message) IsRequest() bool {
	return m.Type == TypeRequest
}

// IsResponse reports whether m answers a request.
func (m *Message) IsResponse() bool {
	return m.Type == TypeResponse
}

// OK reports whether the status is one of the success codes (200, 204).
func (m *Message) OK() bool {
	return m.Status == 200 || m.Status == 204
}

// Clone returns a copy of m without its correlation id, so it can be submitted again.
func (m *Message) Clone() *Message {
	c := *m
	c.ID = ""
	if m.Headers != nil {
		c.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// DecodeBody unmarshals the body into v.
func (m *Message) DecodeBody(v any) error {
	switch b := m.Body.(type) {
	case nil:
		return json.Unmarshal([]byte("null"), v)
	case json.RawMessage:
		return json.Unmarshal(b, v)
	case []byte:
		return json.Unmarshal(b, v)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	}
}

// BodyString renders the body for error messages and logs.
func (m *Message) BodyString() string {
	switch b := m.Body.(type) {
	case nil:
		return ""
	case string:
		return b
	case json.RawMessage:
		var s string
		if json.Unmarshal(b, &s) == nil {
			return s
		}
		return string(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
