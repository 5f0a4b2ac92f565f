package chat

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestDispatcher_EmitUserCountsDeliveries(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)
	ok1, bad, ok2 := newFakeSocket(), newFakeSocket(), newFakeSocket()
	bad.fail = true
	reg.Connect("u", ok1)
	reg.Connect("u", bad)
	reg.Connect("u", ok2)

	if got := d.EmitUser("u", []byte("x")); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if ok1.received() != 1 || ok2.received() != 1 {
		t.Fatal("healthy sockets must still receive")
	}

	if got := d.EmitUser("absent", []byte("x")); got != 0 {
		t.Fatalf("absent user delivered = %d", got)
	}
	if got := d.EmitUser("u", nil); got != 0 {
		t.Fatalf("empty payload delivered = %d", got)
	}
}

func TestDispatcher_EmitRoom(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)
	a1, a2, b := newFakeSocket(), newFakeSocket(), newFakeSocket()
	reg.Connect("a", a1)
	reg.Connect("a", a2)
	reg.Connect("b", b)
	reg.JoinRoom("r", "a")
	reg.JoinRoom("r", "b")
	reg.JoinRoom("r", "offline")

	if got := d.EmitRoom("r", []byte("x")); got != 3 {
		t.Fatalf("delivered = %d, want 3", got)
	}
	if got := d.EmitRoom("nope", []byte("x")); got != 0 {
		t.Fatalf("unknown room delivered = %d", got)
	}
}

func TestDispatcher_EmitRoomEventEncodesFrame(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)
	s := newFakeSocket()
	reg.Connect("a", s)
	reg.JoinRoom("r", "a")

	if got := d.EmitRoomEvent("r", UserTyping{RoomID: "r", UserID: "b"}); got != 1 {
		t.Fatalf("delivered = %d", got)
	}
	var f struct {
		Event string     `json:"event"`
		Data  UserTyping `json:"data"`
	}
	if err := json.Unmarshal(s.got[0], &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Event != EventUserTyping || f.Data.UserID != "b" || f.Data.RoomID != "r" {
		t.Fatalf("frame = %+v", f)
	}
}
