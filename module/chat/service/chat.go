package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/logger"
	"PPAdmin/module/chat/model"
	"PPAdmin/module/chat/store"
	"PPAdmin/tools/errs"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const MsgBlocked = "You are blocked by this user"

// roomFlightTimeout bounds the shared find-or-create of a direct room.
const roomFlightTimeout = 10 * time.Second

// Publisher forwards domain events to a broker (NATS, Kafka) for
// out-of-process consumers such as push delivery.
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte) error
}

// MessageCreated is published after a message is stored.
type MessageCreated struct {
	RoomID     string    `json:"room_id"`
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChatService struct {
	store store.Store
	pub   Publisher
	now   func() time.Time

	roomFlight singleflight.Group // pair_key -> in-flight find-or-create
}

type Option func(*ChatService)

func WithPublisher(p Publisher) Option {
	return func(s *ChatService) { s.pub = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *ChatService) { s.now = now }
}

func NewChatService(st store.Store, opts ...Option) *ChatService {
	s := &ChatService{store: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ChatService) clock() time.Time {
	return s.now().UTC()
}

// IsBlocked reports whether blockerID has an active block on blockedID.
func (s *ChatService) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	return s.store.IsBlocked(ctx, blockerID, blockedID)
}

// FindDirectRoom returns the active direct room of the pair or
// errs.ErrRecordNotFound.
func (s *ChatService) FindDirectRoom(ctx context.Context, userID, otherID string) (*model.Room, error) {
	return s.store.FindDirectRoom(ctx, userID, otherID)
}

// CreateDirectRoom inserts a direct room with creatorID as its only admin.
func (s *ChatService) CreateDirectRoom(ctx context.Context, creatorID, otherID string) (*model.Room, error) {
	now := s.clock()
	room := &model.Room{
		ID:        primitive.NewObjectID().Hex(),
		RoomType:  model.RoomTypeDirect,
		Members:   []string{creatorID, otherID},
		Admins:    []string{creatorID},
		PairKey:   model.PairKey(creatorID, otherID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// FindOrCreateDirectRoom returns the pair's room, creating it on first
// contact. Concurrent callers for the same pair share one lookup; a
// creation that loses a race against another process falls back to the
// winner's room. The shared lookup is detached from any single caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (s *ChatService) FindOrCreateDirectRoom(ctx context.Context, userID, otherID string) (*model.Room, error) {
	ch := s.roomFlight.DoChan(model.PairKey(userID, otherID), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), roomFlightTimeout)
		defer cancel()

		room, err := s.store.FindDirectRoom(fctx, userID, otherID)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, errs.ErrRecordNotFound) {
			return nil, err
		}
		room, err = s.CreateDirectRoom(fctx, userID, otherID)
		if errors.Is(err, errs.ErrDuplicateKey) {
			return s.store.FindDirectRoom(fctx, userID, otherID)
		}
		return room, err
	})

	select {
	case <-ctx.Done():
		return nil, errs.Wrap(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*model.Room)
		return &cp, nil
	}
}

// CreateMessage stores a text message and moves the room's last message
// pointer to it.
func (s *ChatService) CreateMessage(ctx context.Context, room *model.Room, senderID, content string) (*model.Message, error) {
	if room == nil || room.ID == "" {
		return nil, errs.ErrArgs.WrapMsg("invalid room id")
	}
	now := s.clock()
	msg := &model.Message{
		ID:          primitive.NewObjectID().Hex(),
		RoomID:      room.ID,
		SenderID:    senderID,
		Content:     content,
		MessageType: model.MessageTypeText,
		ReadBy:      []string{},
		DeletedFor:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.store.SetLastMessage(ctx, room.ID, msg.ID, now); err != nil {
		return nil, err
	}
	room.LastMessageID = msg.ID
	room.UpdatedAt = now
	return msg, nil
}

// SendMessage is the single entry used by both HTTP and sockets. It fails
// with ErrNoPermission when receiverID blocks senderID; persistence errors
// are returned as is.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID, content string) (*model.Room, *model.Message, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	switch {
	case senderID == "" || receiverID == "":
		return nil, nil, errs.ErrArgs.WrapMsg("sender and receiver are required")
	case senderID == receiverID:
		return nil, nil, errs.ErrArgs.WrapMsg("cannot message yourself")
	case strings.TrimSpace(content) == "":
		return nil, nil, errs.ErrArgs.WrapMsg("content is required")
	}

	blocked, err := s.IsBlocked(ctx, receiverID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if blocked {
		return nil, nil, errs.ErrNoPermission.WrapMsg(MsgBlocked, "sender", senderID, "receiver", receiverID)
	}

	room, err := s.FindOrCreateDirectRoom(ctx, senderID, receiverID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.CreateMessage(ctx, room, senderID, content)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, MessageCreated{
		RoomID:     room.ID,
		MessageID:  msg.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	})
	return room, msg, nil
}

func (s *ChatService) publish(ctx context.Context, ev MessageCreated) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("[Chat] encode message event", zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, ev.RoomID, data); err != nil {
		logger.Warn("[Chat] publish message event",
			zap.String("room_id", ev.RoomID),
			zap.String("message_id", ev.MessageID),
			zap.Error(err))
	}
}

func (s *ChatService) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	return s.setBlock(ctx, blockerID, blockedID, true)
}

func (s *ChatService) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	return s.setBlock(ctx, blockerID, blockedID, false)
}

func (s *ChatService) setBlock(ctx context.Context, blockerID, blockedID string, active bool) error {
	if blockerID == "" || blockedID == "" || blockerID == blockedID {
		return errs.ErrArgs.WrapMsg("invalid block pair", "blocker", blockerID, "blocked", blockedID)
	}
	return s.store.SetBlock(ctx, blockerID, blockedID, active, s.clock())
}

// MarkRead adds userID to the message's readers. Non members get
// errs.ErrNotMember.
func (s *ChatService) MarkRead(ctx context.Context, userID, messageID string) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberRoom(ctx, userID, msg.RoomID); err != nil {
		return nil, err
	}
	return s.store.AddReader(ctx, messageID, userID, s.clock())
}

// ListMessages pages through a room's history, newest first.
func (s *ChatService) ListMessages(ctx context.Context, userID, roomID string, page, limit int) ([]*model.Message, mongoutil.Pagination, error) {
	if _, err := s.memberRoom(ctx, userID, roomID); err != nil {
		return nil, mongoutil.Pagination{}, err
	}
	return s.store.ListMessages(ctx, roomID, userID, page, limit)
}

// RoomForMember loads roomID and checks userID belongs to it.
func (s *ChatService) RoomForMember(ctx context.Context, userID, roomID string) (*model.Room, error) {
	return s.memberRoom(ctx, userID, roomID)
}

func (s *ChatService) memberRoom(ctx context.Context, userID, roomID string) (*model.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(userID) {
		return nil, errs.ErrNotMember.WrapMsg("not a room member", "room_id", roomID, "user_id", userID)
	}
	return room, nil
}
