package store

import (
	"context"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/module/chat/model"
)

// Rooms persists chat rooms. Direct rooms are unique per member pair:
// InsertRoom reports errs.ErrDuplicateKey when an active direct room for the
// same pair already exists.
type Rooms interface {
	FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error)
	InsertRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	SetLastMessage(ctx context.Context, roomID, messageID string, at time.Time) error
}

type Messages interface {
	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	AddReader(ctx context.Context, messageID, userID string, at time.Time) (*model.Message, error)
	// ListMessages returns newest first, skipping messages hidden for viewer.
	ListMessages(ctx context.Context, roomID, viewer string, page, limit int) ([]*model.Message, mongoutil.Pagination, error)
}

type Blocks interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	SetBlock(ctx context.Context, blockerID, blockedID string, active bool, at time.Time) error
}

// Store bundles everything the chat service persists.
type Store interface {
	Rooms
	Messages
	Blocks
}
