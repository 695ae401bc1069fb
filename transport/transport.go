// Package transport provides the duplex, message-oriented links the session runs on.
//
// A transport is only an ordered message pipe: it knows nothing about requests, ids or
// verbs. Dial returns immediately with a Conn; the connection is established in the
// background and reported through the Handler:
//
//	Dial ──► Conn ─┬─ OnOpen(protocol)      once the link is usable
//	               ├─ OnMessage(data)       for every inbound message
//	               ├─ OnHeartbeat()         for every liveness probe from the peer
//	               └─ OnClose(err)          exactly once, also when dialing fails
//
// Handler methods are always invoked from the connection's own goroutine, never from
// inside Dial, Send or Close.
package transport

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrNotOpen           = errors.New("transport: connection not open")
	ErrUnsupportedScheme = errors.New("transport: unsupported endpoint scheme")
	ErrFrameTooLarge     = errors.New("transport: message exceeds the frame size limit")
)

// Handler receives the notifications of one connection.
type Handler interface {
	OnOpen(protocol string)
	OnMessage(data []byte)
	OnHeartbeat()
	OnClose(err error)
}

// Conn is one duplex connection.
type Conn interface {
	// Send transmits data verbatim. An empty payload answers a heartbeat.
	Send(data []byte) error
	// Close starts an active close; OnClose follows.
	Close() error
	URL() string
	Transport() string
}

// Dialer opens connections.
type Dialer interface {
	Dial(endpoint string, h Handler) (Conn, error)
}

// Options tunes the built-in transports.
type Options struct {
	HandshakeTimeout  time.Duration // Dial + protocol handshake
	WriteTimeout      time.Duration // Per write
	HeartbeatInterval time.Duration // Client-initiated heartbeats on TCP, 0 disables
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// SchemeDialer picks the transport from the endpoint scheme:
//
//	ws://, wss://     WebSocket
//	http://, https:// WebSocket on the same host (ws://, wss://)
//	tcp://            framed TCP
type SchemeDialer struct {
	WebSocket *WebSocketDialer
	TCP       *TCPDialer
}

// NewDialer returns a SchemeDialer with both transports configured from opts.
func NewDialer(opts Options) *SchemeDialer {
	return &SchemeDialer{
		WebSocket: &WebSocketDialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			WriteTimeout:     opts.WriteTimeout,
		},
		TCP: &TCPDialer{
			DialTimeout:       opts.HandshakeTimeout,
			WriteTimeout:      opts.WriteTimeout,
			HeartbeatInterval: opts.HeartbeatInterval,
		},
	}
}

func (d *SchemeDialer) Dial(endpoint string, h Handler) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "tcp":
		return d.TCP.Dial(u.Host, h)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return d.WebSocket.Dial(u.String(), h)
}
