package client

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"bunkr-rpc/codec"
	"bunkr-rpc/discovery"
	"bunkr-rpc/middleware"
	"bunkr-rpc/transport"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultUserAgent      = "bunkr"
)

type options struct {
	dialer         transport.Dialer
	source         discovery.Source
	codec          codec.Codec
	clock          clock.Clock
	logger         zerolog.Logger
	reconnectDelay time.Duration
	idleTimeout    time.Duration
	newID          func() string
	middlewares    []middleware.Middleware
	userAgent      string
}

type Option func(*options)

// WithDialer replaces the default WebSocket/TCP dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithSource replaces the HTTP layout.json discovery. The source is still fetched once.
func WithSource(s discovery.Source) Option {
	return func(o *options) { o.source = s }
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithClock sets the clock driving the reconnect and idle timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithIDGenerator sets the correlation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithMiddleware appends call middlewares. The first one is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithUserAgent sets the client identifier sent in the handshake.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}
