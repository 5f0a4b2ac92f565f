package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/module/chat/model"
	"PPAdmin/tools/errs"
)

// MemStore keeps chat documents in process. It enforces the same unique
// constraints as the Mongo indexes and hands out copies.
type MemStore struct {
	mu       sync.RWMutex
	rooms    map[string]*model.Room    // room_id -> room
	pairs    map[string]string         // pair_key -> room_id (active direct rooms)
	messages map[string]*model.Message // message_id -> message
	byRoom   map[string][]string       // room_id -> message ids, insert order
	blocks   map[string]*model.Block   // blocker|blocked -> block
}

func NewMemStore() *MemStore {
	return &MemStore{
		rooms:    make(map[string]*model.Room),
		pairs:    make(map[string]string),
		messages: make(map[string]*model.Message),
		byRoom:   make(map[string][]string),
		blocks:   make(map[string]*model.Block),
	}
}

func keyBlock(blocker, blocked string) string { return blocker + "|" + blocked }

func cloneRoom(r *model.Room) *model.Room {
	cp := *r
	cp.Members = append([]string(nil), r.Members...)
	cp.Admins = append([]string(nil), r.Admins...)
	return &cp
}

func cloneMessage(m *model.Message) *model.Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	cp.DeletedFor = append([]string(nil), m.DeletedFor...)
	return &cp
}

func (s *MemStore) FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.pairs[model.PairKey(a, b)]; ok {
		return cloneRoom(s.rooms[id]), nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("direct room", "a", a, "b", b)
}

func (s *MemStore) InsertRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return errs.ErrDuplicateKey.WrapMsg("room", "room_id", room.ID)
	}
	direct := room.RoomType == model.RoomTypeDirect && !room.IsDeleted
	if direct {
		if _, ok := s.pairs[room.PairKey]; ok {
			return errs.ErrDuplicateKey.WrapMsg("room", "pair_key", room.PairKey)
		}
		s.pairs[room.PairKey] = room.ID
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (s *MemStore) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok || r.IsDeleted {
		return nil, errs.ErrRecordNotFound.WrapMsg("room", "room_id", roomID)
	}
	return cloneRoom(r), nil
}

func (s *MemStore) SetLastMessage(ctx context.Context, roomID, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("room", "room_id", roomID)
	}
	r.LastMessageID = messageID
	r.UpdatedAt = at
	return nil
}

func (s *MemStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return errs.ErrDuplicateKey.WrapMsg("message", "message_id", msg.ID)
	}
	s.messages[msg.ID] = cloneMessage(msg)
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], msg.ID)
	return nil
}

func (s *MemStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "message_id", messageID)
	}
	return cloneMessage(m), nil
}

func (s *MemStore) AddReader(ctx context.Context, messageID, userID string, at time.Time) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "message_id", messageID)
	}
	seen := false
	for _, u := range m.ReadBy {
		if u == userID {
			seen = true
			break
		}
	}
	if !seen {
		m.ReadBy = append(m.ReadBy, userID)
	}
	m.UpdatedAt = at
	return cloneMessage(m), nil
}

func (s *MemStore) ListMessages(ctx context.Context, roomID, viewer string, page, limit int) ([]*model.Message, mongoutil.Pagination, error) {
	page, limit = mongoutil.NormalizePage(page, limit)

	s.mu.RLock()
	ids := s.byRoom[roomID]
	visible := make([]*model.Message, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if m := s.messages[ids[i]]; !m.HiddenFor(viewer) {
			visible = append(visible, cloneMessage(m))
		}
	}
	s.mu.RUnlock()

	// newest first; later inserts win ties
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})

	total := int64(len(visible))
	start := (page - 1) * limit
	if start > len(visible) {
		start = len(visible)
	}
	end := start + limit
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], mongoutil.NewPagination(page, limit, total), nil
}

func (s *MemStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[keyBlock(blockerID, blockedID)]
	return ok && b.IsActive, nil
}

func (s *MemStore) SetBlock(ctx context.Context, blockerID, blockedID string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyBlock(blockerID, blockedID)
	b, ok := s.blocks[k]
	if !ok {
		b = &model.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: at}
		s.blocks[k] = b
	}
	b.IsActive = active
	b.UpdatedAt = at
	return nil
}
