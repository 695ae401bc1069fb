package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer dials WebSocket endpoints. Ping control frames from the server are
// reported as heartbeats; an empty Send answers with a pong carrying the last ping's
// payload.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

func (d *WebSocketDialer) Dial(endpoint string, h Handler) (Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		url:          endpoint,
		h:            h,
		writeTimeout: d.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = DefaultOptions().WriteTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	go c.run(dialer, d.Header)
	return c, nil
}

type wsConn struct {
	url          string
	h            Handler
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn // nil until the handshake completes
	closed bool            // Close was called
	ping   string          // Application data of the last ping, echoed in the pong

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	closeOnce sync.Once
}

func (c *wsConn) run(dialer websocket.Dialer, header http.Header) {
	conn, resp, err := dialer.DialContext(c.ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.finish(fmt.Errorf("dial websocket: %w", err))
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

	conn.SetPingHandler(func(appData string) error {
		c.mu.Lock()
		c.ping = appData
		c.mu.Unlock()
		c.h.OnHeartbeat()
		return nil
	})
	c.h.OnOpen(conn.Subprotocol())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.finish(err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.h.OnMessage(data)
	}
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	conn, closed, ping := c.conn, c.closed, c.ping
	c.mu.Unlock()
	if conn == nil || closed {
		return ErrNotOpen
	}

	deadline := time.Now().Add(c.writeTimeout)
	if len(data) == 0 {
		return conn.WriteControl(websocket.PongMessage, []byte(ping), deadline)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
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
		// Still dialing, run() sees the cancelled context and reports the close
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *wsConn) URL() string {
	return c.url
}

func (c *wsConn) Transport() string {
	return "websocket"
}

// finish reports the close exactly once. Errors caused by our own Close are dropped.
func (c *wsConn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.closed {
			err = nil
		}
		c.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		c.cancel()
		c.h.OnClose(err)
	})
}
