// Package session owns the lifecycle of one transport connection at a time.
//
// The session knows nothing about requests or verbs. It dials an endpoint, keeps the link
// alive and reports three events to its Listener:
//
//	transport OnOpen     ──► refresh idle timer ──► Listener.OnOpened
//	transport OnMessage  ──► refresh idle timer ──► decode ──► Listener.OnMessage
//	transport OnHeartbeat──► echo empty frame   ──► refresh idle timer
//	transport OnClose    ──► stop idle timer, drop conn ──► Listener.OnClosed
//
// If nothing arrives for IdleTimeout the session closes the connection itself.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"bunkr-rpc/codec"
	"bunkr-rpc/message"
	"bunkr-rpc/transport"
)

// DefaultIdleTimeout closes a connection that has been silent this long.
const DefaultIdleTimeout = 35 * time.Second

var ErrNotReady = errors.New("session: not ready")

// Listener receives session events. Methods are never called with the session lock held.
type Listener interface {
	OnOpened(protocol string)
	OnMessage(msg *message.Message)
	OnClosed(err error)
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Dialer      transport.Dialer
	Codec       codec.Codec
	Clock       clock.Clock
	IdleTimeout time.Duration
	NewID       func() string
	Logger      zerolog.Logger
}

// Session manages a single duplex connection and its liveness.
type Session struct {
	dialer transport.Dialer
	codec  codec.Codec
	clock  clock.Clock
	idle   time.Duration
	newID  func() string
	log    zerolog.Logger

	mu       sync.Mutex
	listener Listener
	url      string
	conn     transport.Conn // nil when no connection exists
	gen      uint64         // Bumped per connection; callbacks from older ones are ignored
	timer    *clock.Timer   // Idle timer
}

// New creates a session. The listener may be set later with SetListener.
func New(opts Options) *Session {
	s := &Session{
		dialer: opts.Dialer,
		codec:  opts.Codec,
		clock:  opts.Clock,
		idle:   opts.IdleTimeout,
		newID:  opts.NewID,
		log:    opts.Logger,
	}
	if s.dialer == nil {
		s.dialer = transport.NewDialer(transport.DefaultOptions())
	}
	if s.codec == nil {
		s.codec = codec.GetCodec(codec.CodecTypeSJMP)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.idle <= 0 {
		s.idle = DefaultIdleTimeout
	}
	if s.newID == nil {
		s.newID = message.NewID
	}
	return s
}

// SetListener installs the receiver of session events.
func (s *Session) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Connect opens a connection to url. It is a no-op while a connection exists.
// The connection is established in the background; OnOpened or OnClosed follows.
func (s *Session) Connect(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	if url != "" {
		s.url = url
	}

	s.gen++
	conn, err := s.dialer.Dial(s.url, &connHandler{s: s, gen: s.gen, url: s.url})
	if err != nil {
		return fmt.Errorf("session connect %s: %w", s.url, err)
	}
	s.conn = conn
	s.refreshLocked()
	s.log.Debug().Str("url", s.url).Msg("session dialing")
	return nil
}

// Close actively closes the current connection. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.stopTimerLocked()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Write transmits pre-encoded data verbatim. It reports whether a transmission was
// attempted; the error is the transport's, if it failed.
func (s *Session) Write(raw []byte) (bool, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return false, nil
	}
	return true, conn.Send(raw)
}

// Send assigns a correlation id if absent, encodes msg and transmits it.
// Unlike Write it fails when there is no connection.
func (s *Session) Send(msg *message.Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotReady
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	p, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	return conn.Send(p.Bytes())
}

// IsReady reports whether a connection object exists. It may not be open yet.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Descriptor returns the URL and transport name of the current connection.
func (s *Session) Descriptor() (url, transportName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return s.url, ""
	}
	return s.conn.URL(), s.conn.Transport()
}

// refreshLocked re-arms the idle timer for the current connection.
func (s *Session) refreshLocked() {
	s.stopTimerLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.idle, func() {
		s.expire(gen)
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	current := s.gen == gen && s.conn != nil
	s.mu.Unlock()
	if !current {
		return
	}
	s.log.Info().Dur("idle", s.idle).Msg("session idle timeout, closing")
	s.Close()
}

// current returns the listener if gen is still the live connection.
func (s *Session) current(gen uint64, refresh bool) (Listener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.conn == nil {
		return nil, false
	}
	if refresh {
		s.refreshLocked()
	}
	return s.listener, true
}

// connHandler binds transport callbacks to one connection generation.
type connHandler struct {
	s   *Session
	gen uint64
	url string
}

func (h *connHandler) OnOpen(protocol string) {
	l, ok := h.s.current(h.gen, true)
	if !ok {
		return
	}
	h.s.log.Info().Str("url", h.url).Str("protocol", protocol).Msg("session open")
	if l != nil {
		l.OnOpened(protocol)
	}
}

func (h *connHandler) OnMessage(data []byte) {
	l, ok := h.s.current(h.gen, true)
	if !ok {
		return
	}
	msg, err := h.s.codec.Decode(data)
	if err != nil {
		h.s.log.Warn().Err(err).Int("len", len(data)).Msg("dropping undecodable message")
		return
	}
	if l != nil {
		l.OnMessage(msg)
	}
}

func (h *connHandler) OnHeartbeat() {
	h.s.mu.Lock()
	if h.s.gen != h.gen || h.s.conn == nil {
		h.s.mu.Unlock()
		return
	}
	conn := h.s.conn
	h.s.refreshLocked()
	h.s.mu.Unlock()

	if err := conn.Send(nil); err != nil {
		h.s.log.Debug().Err(err).Msg("heartbeat echo failed")
	}
}

func (h *connHandler) OnClose(err error) {
	h.s.mu.Lock()
	if h.s.gen != h.gen || h.s.conn == nil {
		h.s.mu.Unlock()
		return
	}
	h.s.stopTimerLocked()
	h.s.conn = nil
	l := h.s.listener
	h.s.mu.Unlock()

	h.s.log.Info().Err(err).Str("url", h.url).Msg("session closed")
	if l != nil {
		l.OnClosed(err)
	}
}
