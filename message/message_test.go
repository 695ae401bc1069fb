package message

import (
	"encoding/json"
	"testing"
)

type account struct {
	AccountID string `json:"account_id"`
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(VerbGet, "users/1", nil)

	if !req.IsRequest() || req.IsResponse() {
		t.Fatalf("expect request direction, got %q", req.Type)
	}
	if req.Method != VerbGet || req.Resource != "users/1" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Headers == nil {
		t.Fatal("expect non-nil headers")
	}
}

func TestCloneDropsID(t *testing.T) {
	req := NewRequest(VerbPut, "doc/5", map[string]int{"v": 1})
	req.ID = NewID()
	req.Headers["x"] = "1"

	c := req.Clone()
	if c.ID != "" {
		t.Fatalf("expect empty id, got %q", c.ID)
	}
	c.Headers["x"] = "2"
	if req.Headers["x"] != "1" {
		t.Fatal("clone must not share headers")
	}
}

func TestDecodeBody(t *testing.T) {
	resp := &Message{Type: TypeResponse, Status: 200, Body: json.RawMessage(`{"account_id":"a1"}`)}

	var got account
	if err := resp.DecodeBody(&got); err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "a1" {
		t.Fatalf("expect a1, got %q", got.AccountID)
	}

	local := &Message{Body: map[string]string{"account_id": "a2"}}
	if err := local.DecodeBody(&got); err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "a2" {
		t.Fatalf("expect a2, got %q", got.AccountID)
	}
}

func TestOKAndBodyString(t *testing.T) {
	cases := []struct {
		status int
		ok     bool
	}{
		{200, true},
		{204, true},
		{201, false},
		{404, false},
		{500, false},
	}
	for _, tc := range cases {
		m := &Message{Status: tc.status}
		if m.OK() != tc.ok {
			t.Errorf("status %d: expect OK=%v", tc.status, tc.ok)
		}
	}

	m := &Message{Body: json.RawMessage(`"invalid token"`)}
	if m.BodyString() != "invalid token" {
		t.Fatalf("unexpected body string %q", m.BodyString())
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
