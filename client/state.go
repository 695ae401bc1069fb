package client

import "strconv"

// State is the connection state. The numeric values are part of the event contract.
type State int

const (
	StateDisconnected State = -1 // Authentication rejected, no automatic retry
	StateConnecting   State = 0
	StateConnected    State = 1
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Stats counts session activity since the client was created. Counters never reset.
type Stats struct {
	Open        int // Connections that reached StateConnected
	Sent        int // Requests written to the transport
	OfflineSent int // Requests queued while not connected
	OnflySaves  int // Requests coalesced into an identical in-flight request
	Received    int // Messages received while connected
}
