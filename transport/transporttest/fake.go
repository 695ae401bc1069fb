// Package transporttest provides an in-memory transport for tests.
//
// A Dialer hands out Conns that never touch the network. The test drives the peer side by
// calling Open, Deliver, Heartbeat and Drop, and inspects what the code under test sent.
package transporttest

import (
	"sync"
	"time"

	"bunkr-rpc/transport"
)

// Dialer records every connection it creates.
type Dialer struct {
	mu     sync.Mutex
	conns  []*Conn
	dialed chan *Conn

	// Err, when set, is returned by Dial.
	Err error
}

func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

func (d *Dialer) Dial(endpoint string, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	c := &Conn{endpoint: endpoint, h: h, sentCh: make(chan []byte, 256)}
	d.conns = append(d.conns, c)
	d.dialed <- c
	return c, nil
}

// Next waits for the next dialed connection.
func (d *Dialer) Next(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-d.dialed:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Count returns the number of Dial calls that produced a connection.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conn is the client side of a fake connection.
type Conn struct {
	endpoint string
	h        transport.Handler

	mu        sync.Mutex
	sent      [][]byte
	sentCh    chan []byte
	echoes    int
	closed    bool
	closeOnce sync.Once

	// SendErr, when set, is returned by Send for data frames.
	SendErr error
	filter  func(data []byte) error
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrNotOpen
	}
	if len(data) == 0 {
		c.echoes++
		return nil
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	if c.filter != nil {
		if err := c.filter(data); err != nil {
			return err
		}
	}
	b := append([]byte(nil), data...)
	c.sent = append(c.sent, b)
	select {
	case c.sentCh <- b:
	default:
	}
	return nil
}

// Close reports OnClose(nil) asynchronously, like a real transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		go c.h.OnClose(nil)
	})
	return nil
}

func (c *Conn) URL() string {
	return c.endpoint
}

func (c *Conn) Transport() string {
	return "fake"
}

// SetSendErr makes subsequent data sends fail with err.
func (c *Conn) SetSendErr(err error) {
	c.mu.Lock()
	c.SendErr = err
	c.mu.Unlock()
}

// SetSendFilter makes data sends fail whenever fn returns an error.
func (c *Conn) SetSendFilter(fn func(data []byte) error) {
	c.mu.Lock()
	c.filter = fn
	c.mu.Unlock()
}

// Open simulates the link becoming usable.
func (c *Conn) Open() {
	c.h.OnOpen("fake")
}

// Deliver simulates an inbound message.
func (c *Conn) Deliver(data []byte) {
	c.h.OnMessage(data)
}

// Heartbeat simulates a liveness probe from the peer.
func (c *Conn) Heartbeat() {
	c.h.OnHeartbeat()
}

// Drop simulates the peer closing the connection.
func (c *Conn) Drop(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		c.h.OnClose(err)
	})
}

// Closed reports whether Close or Drop was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of every data frame sent so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// NextSent waits for the next data frame.
func (c *Conn) NextSent(timeout time.Duration) ([]byte, bool) {
	select {
	case b := <-c.sentCh:
		return b, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Echoes counts empty sends (heartbeat answers).
func (c *Conn) Echoes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.echoes
}
