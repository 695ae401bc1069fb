package client

import (
	"bunkr-rpc/codec"
	"bunkr-rpc/message"
	"bunkr-rpc/session"
)

const tokenResource = "token"

type tokenRequest struct {
	AccessToken string `json:"access_token"`
	UA          string `json:"ua"`
}

// sessionListener receives session events on the transport goroutine.
type sessionListener struct {
	c *Client
}

// OnOpened starts the handshake. The next message is the token response.
func (l sessionListener) OnOpened(protocol string) {
	c := l.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.authenticating = true
	c.mu.Unlock()

	req := message.NewRequest(message.VerbPost, tokenResource, tokenRequest{
		AccessToken: c.accessToken,
		UA:          c.userAgent,
	})
	if err := c.session.Send(req); err != nil {
		c.log.Warn().Err(err).Msg("handshake send failed")
	}
}

func (l sessionListener) OnMessage(msg *message.Message) {
	c := l.c
	c.mu.Lock()
	if c.authenticating {
		rejected := c.authenticateLocked(msg)
		c.mu.Unlock()
		if rejected {
			c.session.Close()
		}
		return
	}
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return
	}
	c.stats.Received++

	if msg.IsResponse() {
		if e, ok := c.callbacks[msg.ID]; ok {
			resp := msg
			var err error
			if !msg.OK() {
				resp = nil
				err = &StatusError{Status: msg.Status, Body: msg.BodyString()}
			}
			for _, call := range e.calls {
				call.done(resp, err)
			}
			delete(c.onfly, e.resource)
			delete(c.callbacks, msg.ID)
		}
	}

	c.events.emit(TopicPacket, msg)
}

// authenticateLocked handles the token response and reports whether it was rejected.
func (c *Client) authenticateLocked(msg *message.Message) bool {
	c.authenticating = false
	if msg.Status == 200 && msg.Resource == tokenResource {
		c.accountID = accountIDFrom(msg)
		c.log.Info().Str("account_id", c.accountID).Msg("authenticated")
		c.setStateLocked(StateConnected)
		return false
	}

	err := &AuthError{Status: msg.Status, Resource: msg.Resource, Body: msg.BodyString()}
	c.log.Warn().Err(err).Msg("handshake rejected")
	c.setStateLocked(StateDisconnected)
	c.events.emit(TopicError, err)
	c.releaseWaitersLocked(err)
	return true
}

func (l sessionListener) OnClosed(err error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticating = false
	if c.closed {
		return
	}
	if c.state == StateConnected {
		c.setStateLocked(StateConnecting)
		c.events.emit(TopicClose)
	}
	if c.state == StateDisconnected {
		return
	}
	c.log.Info().Err(err).Msg("connection lost")
	c.scheduleReconnectLocked()
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	c.log.Debug().Stringer("state", s).Msg("state changed")
	c.events.emit(TopicState, s)

	if s == StateConnected {
		c.replayLocked()
		c.stats.Open++
		url, name := c.session.Descriptor()
		c.events.emit(TopicOpen, OpenEvent{URL: url, Transport: name})
		c.releaseWaitersLocked(nil)
	}
}

// replayLocked drains the offline queue in submission order. A failed write fails only
// its own call.
func (c *Client) replayLocked() {
	for _, q := range c.pending {
		if err := c.transmitLocked(q.pkt, q.call); err != nil {
			c.log.Warn().Err(err).Str("resource", q.pkt.Resource()).Msg("replay failed")
			q.call.done(nil, err)
		}
	}
	c.pending = nil
}

// submit routes an encoded request: queue it while offline, otherwise transmit it.
func (c *Client) submit(pkt codec.Packet, call *Call) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		call.done(nil, ErrClosed)
		return
	}
	if c.state != StateConnected {
		c.stats.OfflineSent++
		c.pending = append(c.pending, queued{pkt: pkt, call: call})
		return
	}
	if err := c.transmitLocked(pkt, call); err != nil {
		call.done(nil, err)
	}
}

// transmitLocked coalesces pkt into an identical in-flight request or writes it and
// registers a correlation entry.
func (c *Client) transmitLocked(pkt codec.Packet, call *Call) error {
	if c.coalesceLocked(pkt, call) {
		return nil
	}

	attempted, err := c.session.Write(pkt.Bytes())
	if !attempted {
		err = session.ErrNotReady
	}
	if err != nil {
		return err
	}

	c.stats.Sent++
	c.callbacks[pkt.ID()] = &entry{resource: pkt.Resource(), calls: []*Call{call}}
	return nil
}

// coalesceLocked attaches call to the latest in-flight request for the same resource when
// every field but the id matches and that request is still unanswered. Otherwise pkt
// becomes the resource's in-flight marker.
func (c *Client) coalesceLocked(pkt codec.Packet, call *Call) bool {
	if pkt.Type() != message.TypeRequest {
		return false
	}
	resource := pkt.Resource()
	if prev, ok := c.onfly[resource]; ok {
		if e, live := c.callbacks[prev.ID()]; live && prev.SameCall(pkt) {
			e.calls = append(e.calls, call)
			c.stats.OnflySaves++
			return true
		}
	}
	c.onfly[resource] = pkt
	return false
}
