// Package client implements the RPC client on top of a session.
//
// The client turns one auto-reconnecting duplex session into request/response calls:
//
//	               Connect
//	                  │
//	                  ▼
//	 ┌────────────► CONNECTING ──── transport open ──► AUTHENTICATING ───┐
//	 │ reconnect      ▲                                   │ token 200    │ rejected
//	 │ after 2s       │ transport closed                  ▼              ▼
//	 └──────── transport closed ◄──────────────────── CONNECTED     DISCONNECTED
//	                                                  (replay queue)   (no retry)
//
// Calls made while not connected wait in an offline queue and are replayed in order on
// the next CONNECTED. While connected, a request identical to the latest in-flight request
// for the same resource (ignoring the correlation id) is not sent again: it waits for the
// same response. Responses are matched by correlation id regardless of arrival order.
//
// A call waits for its response for as long as it takes. Connection loss does not fail
// outstanding calls; their correlation entries live until a matching response arrives.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"bunkr-rpc/codec"
	"bunkr-rpc/discovery"
	"bunkr-rpc/message"
	"bunkr-rpc/middleware"
	"bunkr-rpc/session"
)

// Client is safe for concurrent use. A single mutex guards the state machine, the
// correlation map, the in-flight markers and the offline queue.
type Client struct {
	accessToken    string
	userAgent      string
	source         discovery.Source
	session        *session.Session
	codec          codec.Codec
	clock          clock.Clock
	newID          func() string
	reconnectDelay time.Duration
	log            zerolog.Logger
	handler        middleware.HandlerFunc
	bus            evbus.Bus
	events         *dispatcher
	closers        []io.Closer

	mu             sync.Mutex
	state          State
	authenticating bool // Handshake sent, waiting for the token response
	closed         bool
	accountID      string
	callbacks      map[string]*entry       // Correlation id → waiting calls
	onfly          map[string]codec.Packet // Resource → latest transmitted request
	pending        []queued                // Offline queue
	waiters        []chan error            // Connect calls waiting for the handshake
	stats          Stats
	timer          *clock.Timer // Reconnect timer
	timerGen       uint64       // Bumped whenever the reconnect slot changes
}

// entry is a correlation entry: every call waiting on one transmitted request.
type entry struct {
	resource string
	calls    []*Call
}

type queued struct {
	pkt  codec.Packet
	call *Call
}

// New creates a client for the server at url. Nothing is dialed until Connect.
func New(url, accessToken string, opts ...Option) *Client {
	o := options{
		reconnectDelay: DefaultReconnectDelay,
		userAgent:      DefaultUserAgent,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == nil {
		o.source = discovery.NewHTTPSource(url, nil)
	}
	if _, ok := o.source.(*discovery.Cache); !ok {
		o.source = discovery.NewCache(o.source)
	}
	if o.codec == nil {
		o.codec = codec.GetCodec(codec.CodecTypeSJMP)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.newID == nil {
		o.newID = message.NewID
	}
	if o.reconnectDelay <= 0 {
		o.reconnectDelay = DefaultReconnectDelay
	}

	c := &Client{
		accessToken:    accessToken,
		userAgent:      o.userAgent,
		source:         o.source,
		codec:          o.codec,
		clock:          o.clock,
		newID:          o.newID,
		reconnectDelay: o.reconnectDelay,
		log:            o.logger.With().Str("component", "client").Logger(),
		bus:            evbus.New(),
		state:          StateConnecting,
		callbacks:      make(map[string]*entry),
		onfly:          make(map[string]codec.Packet),
	}
	c.events = newDispatcher(c.bus)
	c.session = session.New(session.Options{
		Dialer:      o.dialer,
		Codec:       o.codec,
		Clock:       o.clock,
		IdleTimeout: o.idleTimeout,
		NewID:       o.newID,
		Logger:      o.logger.With().Str("component", "session").Logger(),
	})
	c.session.SetListener(sessionListener{c})
	c.handler = middleware.Chain(o.middlewares...)(c.roundTrip)
	return c
}

// Connect brings the client to StateConnected. It returns once the handshake succeeds,
// including one completed by an automatic reconnect, or with an *AuthError when the
// server rejects the token. Discovery and dial errors are returned directly.
// Cancelling ctx only stops the wait. Connect returns nil at once when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected {
		c.stopReconnectLocked()
		c.mu.Unlock()
		return nil
	}
	wait := make(chan error, 1)
	c.waiters = append(c.waiters, wait)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.dropWaiter(wait)
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		c.dropWaiter(wait)
		return ctx.Err()
	}
}

// dial resolves the endpoint and opens the session. A handshake already in progress is
// left alone.
func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopReconnectLocked()
	if c.state == StateConnected || (c.state == StateConnecting && c.session.IsReady()) {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	layout, err := c.source.Layout(ctx)
	if err != nil {
		return fmt.Errorf("discover endpoint: %w", err)
	}
	endpoint, err := layout.First()
	if err != nil {
		return fmt.Errorf("discover endpoint: %w", err)
	}

	// Close may have run while discovery was in flight
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.session.Connect(endpoint)
}

func (c *Client) dropWaiter(wait chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == wait {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Client) releaseWaitersLocked(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

// scheduleReconnectLocked arms the single reconnect slot, replacing any earlier timer.
func (c *Client) scheduleReconnectLocked() {
	c.stopReconnectLocked()
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.reconnectDelay, func() {
		c.reconnect(gen)
	})
	c.log.Debug().Dur("delay", c.reconnectDelay).Msg("reconnect scheduled")
}

func (c *Client) stopReconnectLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.dial(context.Background()); err != nil {
		c.log.Warn().Err(err).Msg("reconnect failed")
		c.mu.Lock()
		if !c.closed && c.state == StateConnecting && !c.session.IsReady() {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
	}
}

// Close stops reconnecting and closes the session. Calls still queued or in flight are
// left pending; later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.authenticating = false
	c.stopReconnectLocked()
	c.releaseWaitersLocked(ErrClosed)
	if c.state != StateDisconnected {
		c.state = StateDisconnected
		c.events.emit(TopicState, StateDisconnected)
	}
	c.mu.Unlock()

	err := c.session.Close()
	c.events.close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccountID returns the account identifier from the last successful handshake.
func (c *Client) AccountID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// accountIDFrom reads account_id from a token response body. Numbers are kept verbatim.
func accountIDFrom(msg *message.Message) string {
	var body struct {
		AccountID json.RawMessage `json:"account_id"`
	}
	if err := msg.DecodeBody(&body); err != nil || len(body.AccountID) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(body.AccountID, &s) == nil {
		return s
	}
	if string(body.AccountID) == "null" {
		return ""
	}
	return string(body.AccountID)
}
