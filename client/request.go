package client

import (
	"context"

	"bunkr-rpc/message"
)

// RequestOption sets optional request fields.
type RequestOption func(*message.Message)

// WithDate sets the request timestamp in milliseconds.
func WithDate(ms int64) RequestOption {
	return func(m *message.Message) { m.Date = ms }
}

// WithHeaders merges headers into the request.
func WithHeaders(headers map[string]string) RequestOption {
	return func(m *message.Message) {
		for k, v := range headers {
			m.Headers[k] = v
		}
	}
}

// Do sends a request through the middleware chain and waits for its response.
// Responses with a status other than 200 or 204 come back as *StatusError.
func (c *Client) Do(ctx context.Context, verb message.Verb, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	req := message.NewRequest(verb, resource, body)
	for _, opt := range opts {
		opt(req)
	}
	return c.handler(ctx, req)
}

func (c *Client) Get(ctx context.Context, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	return c.Do(ctx, message.VerbGet, resource, body, opts...)
}

func (c *Client) Search(ctx context.Context, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	return c.Do(ctx, message.VerbSearch, resource, body, opts...)
}

func (c *Client) Post(ctx context.Context, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	return c.Do(ctx, message.VerbPost, resource, body, opts...)
}

func (c *Client) Put(ctx context.Context, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	return c.Do(ctx, message.VerbPut, resource, body, opts...)
}

func (c *Client) Delete(ctx context.Context, resource string, body any, opts ...RequestOption) (*message.Message, error) {
	return c.Do(ctx, message.VerbDelete, resource, body, opts...)
}
