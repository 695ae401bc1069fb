package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"bunkr-rpc/protocol"
)

// TCPDialer dials raw TCP endpoints that speak the framed protocol.
type TCPDialer struct {
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration // 0 disables client-initiated heartbeats
}

func (d *TCPDialer) Dial(addr string, h Handler) (Conn, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty tcp address", ErrUnsupportedScheme)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &tcpConn{
		addr:         addr,
		h:            h,
		writeTimeout: d.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = DefaultOptions().WriteTimeout
	}
	go c.run(d.DialTimeout, d.HeartbeatInterval)
	return c, nil
}

type tcpConn struct {
	addr         string
	h            Handler
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	sending   sync.Mutex // Serializes frame writes
	closeOnce sync.Once
}

func (c *tcpConn) run(dialTimeout, heartbeat time.Duration) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(c.ctx, "tcp", c.addr)
	if err != nil {
		c.finish(fmt.Errorf("dial tcp: %w", err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.finish(nil)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.h.OnOpen("tcp")
	if heartbeat > 0 {
		go c.heartbeatLoop(heartbeat)
	}

	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.finish(err)
			return
		}
		switch header.FrameType {
		case protocol.FrameTypeHeartbeat:
			c.h.OnHeartbeat()
		case protocol.FrameTypeData:
			c.h.OnMessage(body)
		}
	}
}

// heartbeatLoop sends periodic heartbeat frames until the connection goes away.
func (c *tcpConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(nil); err != nil {
				return
			}
		}
	}
}

func (c *tcpConn) Send(data []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if conn == nil || closed {
		return ErrNotOpen
	}
	if uint64(len(data)) > uint64(protocol.MaxBodyLen) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	header := &protocol.Header{FrameType: protocol.FrameTypeData, BodyLen: uint32(len(data))}
	if len(data) == 0 {
		header.FrameType = protocol.FrameTypeHeartbeat
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return protocol.Encode(conn, header, data)
}

func (c *tcpConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *tcpConn) URL() string {
	return "tcp://" + c.addr
}

func (c *tcpConn) Transport() string {
	return "tcp"
}

func (c *tcpConn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.closed {
			err = nil
		}
		c.mu.Unlock()
		c.cancel()
		c.h.OnClose(err)
	})
}
