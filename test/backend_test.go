package test

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"bunkr-rpc/discovery"
	"bunkr-rpc/protocol"
)

// backend is a scripted server: it serves layout.json and answers requests on a
// WebSocket endpoint and on a framed TCP endpoint.
//
//	token      → 200 {"account_id":"acc-42"} when access_token is "secret", else 401
//	missing/*  → 404 "not found"
//	anything   → 200 echoing the request body
type backend struct {
	http  *httptest.Server
	tcp   net.Listener
	wsURL string

	mu     sync.Mutex
	layout []string
	conns  []*websocket.Conn
}

func newBackend(t testing.TB) *backend {
	t.Helper()
	b := &backend{}

	mux := http.NewServeMux()
	mux.HandleFunc("/layout.json", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		layout := discovery.Layout{Socket: b.layout}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(layout)
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/socket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, answer(data)); err != nil {
				return
			}
		}
	})
	b.http = httptest.NewServer(mux)
	b.wsURL = "ws" + strings.TrimPrefix(b.http.URL, "http") + "/socket"
	b.layout = []string{b.wsURL}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	b.tcp = ln
	go b.serveTCP()

	t.Cleanup(func() {
		b.http.Close()
		b.tcp.Close()
	})
	return b
}

func (b *backend) tcpURL() string {
	return "tcp://" + b.tcp.Addr().String()
}

func (b *backend) setLayout(endpoints ...string) {
	b.mu.Lock()
	b.layout = endpoints
	b.mu.Unlock()
}

// dropAll closes every WebSocket connection from the server side.
func (b *backend) dropAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (b *backend) serveTCP() {
	for {
		conn, err := b.tcp.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				h, body, err := protocol.Decode(conn)
				if err != nil {
					return
				}
				if h.FrameType == protocol.FrameTypeHeartbeat {
					continue
				}
				reply := answer(body)
				if err := protocol.Encode(conn, &protocol.Header{FrameType: protocol.FrameTypeData, BodyLen: uint32(len(reply))}, reply); err != nil {
					return
				}
			}
		}()
	}
}

func answer(data []byte) []byte {
	var p []json.RawMessage
	if err := json.Unmarshal(data, &p); err != nil || len(p) < 7 {
		return []byte(`[">","error","",0,{},"bad packet",400]`)
	}
	var resource, id string
	json.Unmarshal(p[1], &resource)
	json.Unmarshal(p[2], &id)

	status, body := 200, string(p[5])
	switch {
	case resource == "token":
		var cred struct {
			AccessToken string `json:"access_token"`
		}
		json.Unmarshal(p[5], &cred)
		if cred.AccessToken == "secret" {
			body = `{"account_id":"acc-42"}`
		} else {
			status, body = 401, `"invalid token"`
		}
	case strings.HasPrefix(resource, "missing/"):
		status, body = 404, `"not found"`
	}
	return []byte(fmt.Sprintf(`[">",%q,%q,0,{},%s,%d]`, resource, id, body, status))
}
