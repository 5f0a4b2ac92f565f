package model

import "time"

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// UserDevice 一个登录设备的会话；access_token 唯一
type UserDevice struct {
	ID            string     `bson:"_id" json:"id"`
	UserID        string     `bson:"user_id" json:"user_id"`
	DeviceType    string     `bson:"device_type" json:"device_type"` // web/ios/android/pc
	AccessToken   string     `bson:"access_token" json:"-"`
	CurrentStatus string     `bson:"current_status" json:"current_status"`
	LastActive    *time.Time `bson:"last_active" json:"last_active"` // 离线时写入，上线时清空
	Expired       bool       `bson:"expired" json:"expired"`
	IsDeleted     bool       `bson:"is_deleted" json:"is_deleted"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

func (d *UserDevice) GetTableName() string {
	return "user_devices"
}

// Active devices count towards presence.
func (d *UserDevice) Active() bool {
	return !d.Expired && !d.IsDeleted
}

// PresenceStatus is derived from device sessions and never stored.
type PresenceStatus struct {
	UserID   string     `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen"`
}

func ValidStatus(s string) bool {
	return s == StatusOnline || s == StatusOffline
}
