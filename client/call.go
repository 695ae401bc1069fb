package client

import (
	"context"
	"fmt"

	"bunkr-rpc/message"
)

// Call is one logical request. Done receives the call once it completes.
type Call struct {
	Request  *message.Message
	Response *message.Message // Set when the server answered with 200 or 204
	Error    error
	Done     chan *Call
}

func (call *Call) done(resp *message.Message, err error) {
	call.Response = resp
	call.Error = err
	select {
	case call.Done <- call:
	default:
	}
}

// Go submits req without waiting. The request gets a correlation id if it has none.
// Encoding errors complete the call immediately with ErrMalformed.
func (c *Client) Go(req *message.Message) *Call {
	call := &Call{Request: req, Done: make(chan *Call, 1)}
	if req.ID == "" {
		req.ID = c.newID()
	}
	pkt, err := c.codec.Encode(req)
	if err != nil {
		call.done(nil, fmt.Errorf("%w: %v", ErrMalformed, err))
		return call
	}
	c.submit(pkt, call)
	return call
}

// roundTrip is the innermost handler of the middleware chain.
func (c *Client) roundTrip(ctx context.Context, req *message.Message) (*message.Message, error) {
	call := c.Go(req)
	select {
	case <-call.Done:
		return call.Response, call.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
