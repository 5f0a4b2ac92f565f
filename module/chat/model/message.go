package model

import "time"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

type Message struct {
	ID          string    `bson:"_id" json:"id"`
	RoomID      string    `bson:"room_id" json:"room_id"`
	SenderID    string    `bson:"sender_id" json:"sender_id"`
	Content     string    `bson:"content" json:"content"`
	MessageType string    `bson:"message_type" json:"message_type"`
	ReadBy      []string  `bson:"read_by" json:"read_by"`
	DeletedFor  []string  `bson:"deleted_for" json:"-"` // 对这些用户隐藏
	IsDeleted   bool      `bson:"is_deleted" json:"is_deleted"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

func (m *Message) GetTableName() string {
	return "messages"
}

func (m *Message) HiddenFor(userID string) bool {
	if m.IsDeleted {
		return true
	}
	for _, u := range m.DeletedFor {
		if u == userID {
			return true
		}
	}
	return false
}
