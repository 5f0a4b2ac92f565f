package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"PPAdmin/module/chat/model"
	"PPAdmin/module/chat/store"
	"PPAdmin/tools/errs"

	"github.com/goccy/go-json"
)

type recordPublisher struct {
	mu   sync.Mutex
	keys []string
	evs  []MessageCreated
	err  error
}

func (p *recordPublisher) Publish(ctx context.Context, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ev MessageCreated
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	p.evs = append(p.evs, ev)
	return p.err
}

func newTestService(t *testing.T) (*ChatService, *store.MemStore, *recordPublisher) {
	t.Helper()
	st := store.NewMemStore()
	pub := &recordPublisher{}
	return NewChatService(st, WithPublisher(pub)), st, pub
}

func TestSendMessage_CreatesThenReusesRoom(t *testing.T) {
	ctx := context.Background()
	svc, st, pub := newTestService(t)

	room1, msg1, err := svc.SendMessage(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	if room1.RoomType != "direct" || len(room1.Members) != 2 {
		t.Fatalf("unexpected room: %+v", room1)
	}
	if len(room1.Admins) != 1 || room1.Admins[0] != "alice" {
		t.Errorf("admins = %v, want [alice]", room1.Admins)
	}
	if room1.LastMessageID != msg1.ID {
		t.Errorf("last_message_id = %q, want %q", room1.LastMessageID, msg1.ID)
	}

	room2, msg2, err := svc.SendMessage(ctx, "alice", "bob", "again")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if room2.ID != room1.ID {
		t.Fatalf("room not reused: %s vs %s", room2.ID, room1.ID)
	}
	if msg2.ID == msg1.ID {
		t.Fatal("message ids must differ")
	}

	// reverse direction lands in the same room too
	room3, _, err := svc.SendMessage(ctx, "bob", "alice", "yo")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if room3.ID != room1.ID {
		t.Fatalf("reply went to another room")
	}

	stored, err := st.GetRoom(ctx, room1.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if stored.LastMessageID == msg1.ID || stored.LastMessageID == "" {
		t.Errorf("stored last_message_id not advanced: %q", stored.LastMessageID)
	}

	msgs, page, err := svc.ListMessages(ctx, "alice", room1.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if page.TotalItems != 3 || len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d (total %d)", len(msgs), page.TotalItems)
	}

	if len(pub.evs) != 3 || pub.keys[0] != room1.ID || pub.evs[0].ReceiverID != "bob" {
		t.Errorf("published events = %+v", pub.evs)
	}
}

func TestSendMessage_Blocked(t *testing.T) {
	ctx := context.Background()
	svc, st, pub := newTestService(t)

	if err := svc.BlockUser(ctx, "bob", "alice"); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}
	_, _, err := svc.SendMessage(ctx, "alice", "bob", "x")
	if !errors.Is(err, errs.ErrNoPermission) {
		t.Fatalf("want ErrNoPermission, got %v", err)
	}
	if _, err := st.FindDirectRoom(ctx, "alice", "bob"); !errors.Is(err, errs.ErrRecordNotFound) {
		t.Fatalf("no room should exist, got %v", err)
	}
	if len(pub.evs) != 0 {
		t.Fatalf("nothing should be published")
	}

	// the blocker can still write to the blocked user
	if _, _, err := svc.SendMessage(ctx, "bob", "alice", "still here"); err != nil {
		t.Fatalf("blocker send: %v", err)
	}

	if err := svc.UnblockUser(ctx, "bob", "alice"); err != nil {
		t.Fatalf("UnblockUser: %v", err)
	}
	if _, _, err := svc.SendMessage(ctx, "alice", "bob", "x"); err != nil {
		t.Fatalf("send after unblock: %v", err)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name, sender, receiver, content string
	}{
		{"empty sender", "", "bob", "x"},
		{"empty receiver", "alice", " ", "x"},
		{"self", "alice", "alice", "x"},
		{"empty content", "alice", "bob", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SendMessage(context.Background(), tt.sender, tt.receiver, tt.content)
			if !errors.Is(err, errs.ErrArgs) {
				t.Fatalf("want ErrArgs, got %v", err)
			}
		})
	}
}

func TestSendMessage_ConcurrentFirstContactMakesOneRoom(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	const n = 32
	var wg sync.WaitGroup
	roomIDs := make([]string, n)
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, receiver := "alice", "bob"
			if i%2 == 1 {
				sender, receiver = receiver, sender
			}
			room, _, err := svc.SendMessage(ctx, sender, receiver, "race")
			if err != nil {
				errCh <- err
				return
			}
			roomIDs[i] = room.ID
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("send: %v", err)
	}
	for i := 1; i < n; i++ {
		if roomIDs[i] != roomIDs[0] {
			t.Fatalf("duplicate direct rooms: %s vs %s", roomIDs[i], roomIDs[0])
		}
	}
}

// Two service instances share one store, like two processes sharing one
// database; the unique pair constraint must still yield a single room.
func TestFindOrCreateDirectRoom_DuplicateFallsBackToExisting(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	a := NewChatService(st)
	b := NewChatService(st)

	r1, err := a.CreateDirectRoom(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("CreateDirectRoom: %v", err)
	}
	if _, err := b.CreateDirectRoom(ctx, "bob", "alice"); !errors.Is(err, errs.ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
	r2, err := b.FindOrCreateDirectRoom(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("FindOrCreateDirectRoom: %v", err)
	}
	if r2.ID != r1.ID {
		t.Fatalf("got %s, want %s", r2.ID, r1.ID)
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, msg, err := svc.SendMessage(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := svc.MarkRead(ctx, "bob", msg.ID)
		if err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
		if len(got.ReadBy) != 1 || got.ReadBy[0] != "bob" {
			t.Fatalf("read_by = %v", got.ReadBy)
		}
	}

	if _, err := svc.MarkRead(ctx, "mallory", msg.ID); !errors.Is(err, errs.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, "bob", "missing"); !errors.Is(err, errs.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
}

func TestListMessages_Paging(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc := NewChatService(st, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	var room string
	for _, c := range []string{"m1", "m2", "m3", "m4", "m5"} {
		r, _, err := svc.SendMessage(ctx, "alice", "bob", c)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		room = r.ID
	}

	msgs, page, err := svc.ListMessages(ctx, "bob", room, 1, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "m5" || msgs[1].Content != "m4" {
		t.Fatalf("page 1 = %v", contents(msgs))
	}
	if page.NextPage != 2 || page.TotalPages != 3 || page.TotalItems != 5 {
		t.Errorf("pagination = %+v", page)
	}

	msgs, page, err = svc.ListMessages(ctx, "bob", room, 3, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "m1" || page.NextPage != 0 {
		t.Fatalf("last page = %v %+v", contents(msgs), page)
	}

	if _, _, err := svc.ListMessages(ctx, "mallory", room, 1, 2); !errors.Is(err, errs.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
}

func TestSendMessage_PublishFailureIsNotSurfaced(t *testing.T) {
	svc, _, pub := newTestService(t)
	pub.err = errs.New("broker down")
	if _, _, err := svc.SendMessage(context.Background(), "alice", "bob", "hi"); err != nil {
		t.Fatalf("publish errors must not fail the send: %v", err)
	}
}

func contents(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestListMessages_HugePageIsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	room, _, err := svc.SendMessage(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, page := range []int{math.MaxInt / 10, math.MaxInt} {
		msgs, p, err := svc.ListMessages(ctx, "alice", room.ID, page, 20)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(msgs) != 0 || p.NextPage != 0 || p.TotalItems != 1 {
			t.Fatalf("page %d: msgs=%d pagination=%+v", page, len(msgs), p)
		}
	}
}

// gateStore holds FindDirectRoom until gate closes, then honours ctx like a
// real driver would.
type gateStore struct {
	*store.MemStore
	entered   chan struct{}
	enterOnce sync.Once
	gate      chan struct{}
}

func (g *gateStore) FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error) {
	g.enterOnce.Do(func() { close(g.entered) })
	<-g.gate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.MemStore.FindDirectRoom(ctx, a, b)
}

func TestFindOrCreateDirectRoom_CancelledCallerDoesNotFailOthers(t *testing.T) {
	st := &gateStore{MemStore: store.NewMemStore(), entered: make(chan struct{}), gate: make(chan struct{})}
	svc := NewChatService(st)

	type result struct {
		room *model.Room
		err  error
	}
	aCtx, cancelA := context.WithCancel(context.Background())
	aRes := make(chan result, 1)
	go func() {
		r, err := svc.FindOrCreateDirectRoom(aCtx, "alice", "bob")
		aRes <- result{r, err}
	}()
	<-st.entered

	bRes := make(chan result, 1)
	go func() {
		r, err := svc.FindOrCreateDirectRoom(context.Background(), "bob", "alice")
		bRes <- result{r, err}
	}()

	cancelA()
	select {
	case res := <-aRes:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("cancelled caller: want context.Canceled, got %v", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(st.gate)
	select {
	case res := <-bRes:
		if res.err != nil {
			t.Fatalf("second caller: %v", res.err)
		}
		if !res.room.HasMember("alice") || !res.room.HasMember("bob") {
			t.Fatalf("room = %+v", res.room)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
}
