package model

import (
	"sort"
	"strings"
	"time"
)

const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// Room 会话房间；direct 房间恰好两个成员
type Room struct {
	ID            string    `bson:"_id" json:"id"`
	RoomType      string    `bson:"room_type" json:"room_type"`
	Members       []string  `bson:"members" json:"members"`
	Admins        []string  `bson:"admins" json:"admins"`
	Title         string    `bson:"title,omitempty" json:"title,omitempty"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	LastMessageID string    `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	PairKey       string    `bson:"pair_key,omitempty" json:"-"` // direct 房间的成员对，唯一
	IsDeleted     bool      `bson:"is_deleted" json:"is_deleted"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

func (r *Room) GetTableName() string {
	return "rooms"
}

func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// PairKey is the order independent key of a two user pair.
func PairKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return strings.Join(p, ":")
}
