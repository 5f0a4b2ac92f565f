package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PPAdmin/global/config"
	chatsvc "PPAdmin/module/chat/service"
	chatstore "PPAdmin/module/chat/store"
	usermodel "PPAdmin/module/user/model"
	usersvc "PPAdmin/module/user/service"
	userstore "PPAdmin/module/user/store"
	"PPAdmin/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	ts       *httptest.Server
	srv      *Server
	reg      *Registry
	presence *usersvc.PresenceService
	opts     security.Options
}

func newTestEnv(t *testing.T, cfg config.WSConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := NewRegistry()
	opts := security.DefaultOptions([]byte("ws-test-secret"))
	presence := usersvc.NewPresenceService(userstore.NewMemStore())
	srv := NewServer(cfg, ServerDeps{
		Dispatcher: NewDispatcher(reg),
		Chat:       chatsvc.NewChatService(chatstore.NewMemStore()),
		Presence:   presence,
		Verifier:   security.NewVerifier(opts),
		StatusRoom: usersvc.StatusRoom,
	})

	r := gin.New()
	r.GET("/ws/chat/:user_id", srv.HandleChat)
	r.GET("/ws/user/:token", srv.HandleUser)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, srv: srv, reg: reg, presence: presence, opts: opts}
}

func defaultWSConfig() config.WSConfig {
	return config.WSConfig{
		ReadLimit:    1 << 16,
		PongWait:     10 * time.Second,
		PingInterval: 5 * time.Second,
		WriteWait:    time.Second,
	}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// dialChat connects userID and waits until the registry holds the socket.
func (e *testEnv) dialChat(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	before := e.reg.ConnectionCount(userID)
	c := e.dial(t, "/ws/chat/"+userID)
	waitFor(t, func() bool { return e.reg.ConnectionCount(userID) > before })
	return c
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	d, err := e.presence.RegisterDevice(context.Background(), e.opts, userID, "web")
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	return d.AccessToken
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.WriteJSON(Frame{Event: event, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn, out any) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame %s: %v", raw, err)
	}
	if out != nil {
		if err := json.Unmarshal(f.Data, out); err != nil {
			t.Fatalf("unmarshal data %s: %v", f.Data, err)
		}
	}
	return f.Event
}

func expectError(t *testing.T, c *websocket.Conn, code string) {
	t.Helper()
	var e ErrorEvent
	if ev := read(t, c, &e); ev != EventError || e.Code != code {
		t.Fatalf("got %s %+v, want error %s", ev, e, code)
	}
}

// expectAck sends a heartbeat and requires the ack to be the next frame,
// which proves nothing else was queued before it.
func expectAck(t *testing.T, c *websocket.Conn) {
	t.Helper()
	send(t, c, EventHeartbeat, struct{}{})
	if ev := read(t, c, nil); ev != EventHeartbeatAck {
		t.Fatalf("got %s, want heartbeat_ack", ev)
	}
}

func TestChatSocket_SendMessageReachesBothUsers(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	alice := env.dialChat(t, "alice")
	alice2 := env.dialChat(t, "alice")
	bob := env.dialChat(t, "bob")

	send(t, alice, EventSendMessage, SendMessage{ReceiverUserID: "bob", Content: "hello"})

	var got [3]NewMessage
	for i, c := range []*websocket.Conn{alice, alice2, bob} {
		if ev := read(t, c, &got[i]); ev != EventNewMessage {
			t.Fatalf("conn %d got %s", i, ev)
		}
	}
	if got[0].RoomID == "" || got[0].SenderID != "alice" || got[0].Content != "hello" {
		t.Fatalf("new_message = %+v", got[0])
	}
	if got[1].MessageID != got[0].MessageID || got[2].RoomID != got[0].RoomID {
		t.Fatalf("participants saw different messages: %+v", got)
	}
	if !env.reg.InRoom(got[0].RoomID, "alice") || !env.reg.InRoom(got[0].RoomID, "bob") {
		t.Fatal("both users should be subscribed to the room")
	}

	// typing goes to the other member
	send(t, bob, EventTyping, Typing{RoomID: got[0].RoomID})
	var typing UserTyping
	if ev := read(t, alice, &typing); ev != EventUserTyping || typing.UserID != "bob" {
		t.Fatalf("got %s %+v", ev, typing)
	}
	_ = read(t, alice2, nil)
	_ = read(t, bob, nil)

	// read receipt
	send(t, bob, EventReadMessage, ReadMessage{MessageID: got[0].MessageID})
	var rd MessageRead
	if ev := read(t, alice, &rd); ev != EventMessageRead || rd.UserID != "bob" || rd.MessageID != got[0].MessageID {
		t.Fatalf("got %s %+v", ev, rd)
	}
}

func TestChatSocket_NonMemberTyping(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	alice := env.dialChat(t, "alice")
	env.dialChat(t, "bob")
	mallory := env.dialChat(t, "mallory")

	send(t, alice, EventSendMessage, SendMessage{ReceiverUserID: "bob", Content: "hi"})
	var nm NewMessage
	_ = read(t, alice, &nm)

	send(t, mallory, EventTyping, Typing{RoomID: nm.RoomID})
	expectError(t, mallory, CodeNotRoomMember)
	send(t, mallory, EventTyping, Typing{RoomID: "no-such-room"})
	expectError(t, mallory, CodeNotRoomMember)
}

func TestChatSocket_BlockedSenderGetsErrorFrame(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	alice := env.dialChat(t, "alice")
	bob := env.dialChat(t, "bob")

	send(t, bob, EventBlockUser, BlockUser{UserID: "alice"})
	var blocked UserBlocked
	if ev := read(t, alice, &blocked); ev != EventUserBlocked || blocked.UserID != "bob" {
		t.Fatalf("got %s %+v", ev, blocked)
	}

	send(t, alice, EventSendMessage, SendMessage{ReceiverUserID: "bob", Content: "let me in"})
	var e ErrorEvent
	if ev := read(t, alice, &e); ev != EventError || e.Code != CodeUserBlocked || e.Message != chatsvc.MsgBlocked {
		t.Fatalf("got %s %+v", ev, e)
	}
	expectAck(t, bob)

	send(t, bob, EventUnblockUser, UnblockUser{UserID: "alice"})
	if ev := read(t, alice, nil); ev != EventUserUnblocked {
		t.Fatalf("got %s", ev)
	}
	send(t, alice, EventSendMessage, SendMessage{ReceiverUserID: "bob", Content: "thanks"})
	if ev := read(t, bob, nil); ev != EventNewMessage {
		t.Fatalf("got %s", ev)
	}
}

func TestChatSocket_BadFramesKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	alice := env.dialChat(t, "alice")

	send(t, alice, "dance", struct{}{})
	expectError(t, alice, CodeInvalidEvent)

	send(t, alice, EventSendMessage, map[string]string{"content": "no receiver"})
	expectError(t, alice, CodeValidationError)

	send(t, alice, EventSendMessage, SendMessage{ReceiverUserID: "alice", Content: "me"})
	expectError(t, alice, CodeValidationError)

	// presence-only event on a chat socket
	send(t, alice, EventUpdateStatus, UpdateStatus{Status: "online"})
	expectError(t, alice, CodeInvalidEvent)

	expectAck(t, alice)
}

func TestChatSocket_MalformedJSONClosesAndCleansUp(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	alice := env.dialChat(t, "alice")
	env.reg.JoinRoom("r1", "alice")

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Fatal("connection should be closed")
	}
	waitFor(t, func() bool { return !env.reg.IsConnected("alice") })
	if env.reg.InRoom("r1", "alice") {
		t.Fatal("room membership should be dropped on disconnect")
	}
}

func TestChatSocket_RateLimited(t *testing.T) {
	cfg := defaultWSConfig()
	cfg.FramesPerSecond = 0.001
	cfg.FrameBurst = 1
	env := newTestEnv(t, cfg)
	alice := env.dialChat(t, "alice")

	expectAck(t, alice)
	send(t, alice, EventHeartbeat, struct{}{})
	expectError(t, alice, CodeRateLimited)
}

func TestPresenceSocket_StatusFlow(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	aliceTok := env.token(t, "alice")
	bobTok := env.token(t, "bob")

	bob := env.dial(t, "/ws/user/"+bobTok)
	waitFor(t, func() bool { return env.reg.IsConnected("bob") })

	send(t, bob, EventGetUserStatus, GetUserStatus{UserIDs: []string{"alice"}})
	var st UserStatus
	if ev := read(t, bob, &st); ev != EventUserStatus || st.UserID != "alice" || st.Status != usermodel.StatusOffline || st.LastSeen == nil {
		t.Fatalf("got %s %+v", ev, st)
	}
	if !env.reg.InRoom(usersvc.StatusRoom("alice"), "bob") {
		t.Fatal("bob should watch alice's status room")
	}

	alice := env.dial(t, "/ws/user/"+aliceTok)
	if ev := read(t, bob, &st); ev != EventUserStatus || st.UserID != "alice" || st.Status != usermodel.StatusOnline || st.LastSeen != nil {
		t.Fatalf("got %s %+v", ev, st)
	}
	statuses, _ := env.presence.StatusByUserIDs(context.Background(), []string{"alice"})
	if statuses["alice"].Status != usermodel.StatusOnline {
		t.Fatalf("stored status = %+v", statuses["alice"])
	}

	send(t, alice, EventUpdateStatus, UpdateStatus{Status: usermodel.StatusOffline})
	if ev := read(t, bob, &st); ev != EventUserStatus || st.Status != usermodel.StatusOffline || st.LastSeen == nil {
		t.Fatalf("got %s %+v", ev, st)
	}
	statuses, _ = env.presence.StatusByUserIDs(context.Background(), []string{"alice"})
	if statuses["alice"].Status != usermodel.StatusOffline {
		t.Fatalf("declared offline not stored: %+v", statuses["alice"])
	}

	send(t, alice, EventUpdateStatus, UpdateStatus{Status: usermodel.StatusOnline})
	if ev := read(t, bob, &st); ev != EventUserStatus || st.Status != usermodel.StatusOnline {
		t.Fatalf("got %s %+v", ev, st)
	}

	_ = alice.Close()
	if ev := read(t, bob, &st); ev != EventUserStatus || st.UserID != "alice" || st.Status != usermodel.StatusOffline || st.LastSeen == nil {
		t.Fatalf("got %s %+v", ev, st)
	}
	waitFor(t, func() bool { return !env.reg.IsConnected("alice") })
}

func TestPresenceSocket_InvalidToken(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	c := env.dial(t, "/ws/user/not-a-token")
	expectError(t, c, CodeUnauthorized)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy violation close, got %v", err)
	}
	if env.reg.UserCount() != 0 {
		t.Fatal("rejected socket must not be registered")
	}
}

func TestServer_WaitAfterCloseAllMarksDevicesOffline(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	aliceTok := env.token(t, "alice")
	bobTok := env.token(t, "bob")

	env.dial(t, "/ws/user/"+aliceTok)
	env.dial(t, "/ws/user/"+bobTok)
	env.dialChat(t, "carol")
	waitFor(t, func() bool { return env.reg.IsConnected("alice") && env.reg.IsConnected("bob") })

	statuses, _ := env.presence.StatusByUserIDs(context.Background(), []string{"alice", "bob"})
	if statuses["alice"].Status != usermodel.StatusOnline || statuses["bob"].Status != usermodel.StatusOnline {
		t.Fatalf("before shutdown: %+v", statuses)
	}

	env.reg.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.srv.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Wait returned, so every offline write has already landed.
	statuses, err := env.presence.StatusByUserIDs(context.Background(), []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("StatusByUserIDs: %v", err)
	}
	for _, uid := range []string{"alice", "bob"} {
		if statuses[uid].Status != usermodel.StatusOffline || statuses[uid].LastSeen == nil {
			t.Errorf("%s after shutdown = %+v", uid, statuses[uid])
		}
	}
	if env.reg.UserCount() != 0 {
		t.Fatalf("registry not empty: %d users", env.reg.UserCount())
	}
}

func TestServer_WaitHonoursContext(t *testing.T) {
	env := newTestEnv(t, defaultWSConfig())
	env.dialChat(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := env.srv.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded while a session is open, got %v", err)
	}
}
