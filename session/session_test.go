package session

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkr-rpc/message"
	"bunkr-rpc/transport/transporttest"
)

const wait = 2 * time.Second

type listener struct {
	opened   chan string
	messages chan *message.Message
	closed   chan error
}

func newListener() *listener {
	return &listener{
		opened:   make(chan string, 8),
		messages: make(chan *message.Message, 8),
		closed:   make(chan error, 8),
	}
}

func (l *listener) OnOpened(p string)              { l.opened <- p }
func (l *listener) OnMessage(msg *message.Message) { l.messages <- msg }
func (l *listener) OnClosed(err error)             { l.closed <- err }

func setup(t *testing.T) (*Session, *transporttest.Dialer, *clock.Mock, *listener) {
	t.Helper()
	dialer := transporttest.NewDialer()
	mock := clock.NewMock()
	l := newListener()
	s := New(Options{Dialer: dialer, Clock: mock})
	s.SetListener(l)
	return s, dialer, mock, l
}

func connect(t *testing.T, s *Session, dialer *transporttest.Dialer) *transporttest.Conn {
	t.Helper()
	require.NoError(t, s.Connect("ws://example/socket"))
	conn, ok := dialer.Next(wait)
	require.True(t, ok, "expected a dial")
	return conn
}

func TestConnectIsNoopWhileConnected(t *testing.T) {
	s, dialer, _, l := setup(t)
	conn := connect(t, s, dialer)

	require.NoError(t, s.Connect("ws://other/socket"))
	assert.Equal(t, 1, dialer.Count())
	assert.True(t, s.IsReady())

	conn.Open()
	assert.Equal(t, "fake", <-l.opened)

	url, name := s.Descriptor()
	assert.Equal(t, "ws://example/socket", url)
	assert.Equal(t, "fake", name)
}

func TestSendAndWriteRequireConnection(t *testing.T) {
	s, dialer, _, _ := setup(t)

	assert.ErrorIs(t, s.Send(message.NewRequest(message.VerbPost, "token", nil)), ErrNotReady)
	attempted, err := s.Write([]byte("x"))
	assert.False(t, attempted)
	assert.NoError(t, err)

	conn := connect(t, s, dialer)
	msg := message.NewRequest(message.VerbPost, "token", map[string]string{"ua": "bunkr"})
	require.NoError(t, s.Send(msg))
	assert.NotEmpty(t, msg.ID)

	sent, ok := conn.NextSent(wait)
	require.True(t, ok)
	assert.Contains(t, string(sent), `"token"`)
	assert.Contains(t, string(sent), msg.ID)

	attempted, err = s.Write([]byte(`["<","a","b",0,{},null,"get"]`))
	assert.True(t, attempted)
	assert.NoError(t, err)
}

func TestWriteReportsTransportError(t *testing.T) {
	s, dialer, _, _ := setup(t)
	conn := connect(t, s, dialer)
	conn.SetSendErr(errors.New("broken pipe"))

	attempted, err := s.Write([]byte("x"))
	assert.True(t, attempted)
	assert.EqualError(t, err, "broken pipe")
}

func TestMessagesAreDecoded(t *testing.T) {
	s, dialer, _, l := setup(t)
	conn := connect(t, s, dialer)
	conn.Open()

	conn.Deliver([]byte("garbage"))
	conn.Deliver([]byte(`[">","users/1","id-1",0,{},{"name":"x"},200]`))

	select {
	case msg := <-l.messages:
		assert.Equal(t, "id-1", msg.ID)
		assert.Equal(t, 200, msg.Status)
	case <-time.After(wait):
		t.Fatal("message not delivered")
	}
	assert.Len(t, l.messages, 0, "undecodable message must be dropped")
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	s, dialer, mock, l := setup(t)
	conn := connect(t, s, dialer)
	conn.Open()

	mock.Add(DefaultIdleTimeout - time.Second)
	assert.False(t, conn.Closed())

	// Inbound traffic re-arms the timer
	conn.Deliver([]byte(`[">","users/1","id-1",0,{},null,200]`))
	mock.Add(DefaultIdleTimeout - time.Second)
	assert.False(t, conn.Closed())

	mock.Add(2 * time.Second)
	select {
	case err := <-l.closed:
		assert.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("idle timeout did not close the session")
	}
	assert.True(t, conn.Closed())
	assert.False(t, s.IsReady())
}

func TestHeartbeatEchoesAndRefreshes(t *testing.T) {
	s, dialer, mock, _ := setup(t)
	conn := connect(t, s, dialer)
	conn.Open()

	for i := 0; i < 3; i++ {
		mock.Add(30 * time.Second)
		conn.Heartbeat()
	}
	assert.Equal(t, 3, conn.Echoes())
	assert.False(t, conn.Closed())
	assert.True(t, s.IsReady())
}

func TestCloseIsIdempotent(t *testing.T) {
	s, dialer, _, l := setup(t)
	require.NoError(t, s.Close())

	conn := connect(t, s, dialer)
	conn.Open()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-l.closed:
	case <-time.After(wait):
		t.Fatal("close not reported")
	}
	assert.Len(t, l.closed, 0)
}

func TestStaleConnectionIsIgnored(t *testing.T) {
	s, dialer, _, l := setup(t)
	first := connect(t, s, dialer)
	first.Open()
	<-l.opened

	first.Drop(errors.New("reset"))
	assert.EqualError(t, <-l.closed, "reset")

	second := connect(t, s, dialer)
	first.Open()
	first.Deliver([]byte(`[">","users/1","id-1",0,{},null,200]`))
	first.Heartbeat()

	assert.Len(t, l.opened, 0)
	assert.Len(t, l.messages, 0)
	assert.Equal(t, 0, first.Echoes())

	second.Open()
	assert.Equal(t, "fake", <-l.opened)
}
