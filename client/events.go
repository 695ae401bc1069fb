package client

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"bunkr-rpc/message"
)

// Event topics and the handler signature each one expects.
const (
	TopicOpen   = "open"   // func(OpenEvent)
	TopicClose  = "close"  // func()
	TopicError  = "error"  // func(error)
	TopicState  = "state"  // func(State)
	TopicPacket = "packet" // func(*message.Message)
)

// OpenEvent describes the session that just reached StateConnected.
type OpenEvent struct {
	URL       string
	Transport string
}

type event struct {
	topic string
	args  []any
}

// dispatcher publishes events on its own goroutine, in emission order. Emitting never
// blocks, so the client can emit while holding its lock.
type dispatcher struct {
	bus  evbus.Bus
	wake chan struct{}

	mu     sync.Mutex
	queue  []event
	closed bool
}

func newDispatcher(bus evbus.Bus) *dispatcher {
	d := &dispatcher{bus: bus, wake: make(chan struct{}, 1)}
	go d.run()
	return d
}

func (d *dispatcher) emit(topic string, args ...any) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, event{topic: topic, args: args})
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		ev := d.queue[0]
		d.queue[0] = event{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.bus.Publish(ev.topic, ev.args...)
	}
}

// close stops accepting events. Events already queued are still delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

// Subscribe registers fn for topic. fn must match the topic's signature.
// Handlers run on the event goroutine and must not subscribe or unsubscribe.
func (c *Client) Subscribe(topic string, fn any) error {
	return c.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler registered with Subscribe.
func (c *Client) Unsubscribe(topic string, fn any) error {
	return c.bus.Unsubscribe(topic, fn)
}

func (c *Client) OnOpen(fn func(OpenEvent)) error {
	return c.bus.Subscribe(TopicOpen, fn)
}

func (c *Client) OnClose(fn func()) error {
	return c.bus.Subscribe(TopicClose, fn)
}

func (c *Client) OnError(fn func(error)) error {
	return c.bus.Subscribe(TopicError, fn)
}

func (c *Client) OnState(fn func(State)) error {
	return c.bus.Subscribe(TopicState, fn)
}

// OnPacket observes every message received while connected, including server pushes.
// A response reaches its caller before it reaches packet subscribers.
func (c *Client) OnPacket(fn func(*message.Message)) error {
	return c.bus.Subscribe(TopicPacket, fn)
}
