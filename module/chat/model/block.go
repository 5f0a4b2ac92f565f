package model

import "time"

// Block BlockerID 屏蔽了 BlockedID；(blocker_id, blocked_id) 唯一
type Block struct {
	BlockerID string    `bson:"blocker_id" json:"blocker_id"`
	BlockedID string    `bson:"blocked_id" json:"blocked_id"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (b *Block) GetTableName() string {
	return "blocks"
}
