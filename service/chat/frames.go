package chat

import (
	"time"

	"PPAdmin/tools/decode"
	"PPAdmin/tools/errs"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Frame is the wire envelope in both directions: {"event": ..., "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// inbound event names
const (
	EventSendMessage   = "send_message"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
	EventReadMessage   = "read_message"
	EventBlockUser     = "block_user"
	EventUnblockUser   = "unblock_user"
	EventHeartbeat     = "heartbeat"
	EventUpdateStatus  = "update_status"
	EventGetUserStatus = "get_user_status"
)

// outbound event names
const (
	EventNewMessage     = "new_message"
	EventUserStatus     = "user_status"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventMessageRead    = "message_read"
	EventUserBlocked    = "user_blocked"
	EventUserUnblocked  = "user_unblocked"
	EventHeartbeatAck   = "heartbeat_ack"
	EventError          = "error"
)

// error frame codes
const (
	CodeUnauthorized    = "unauthorized"
	CodeUserBlocked     = "user_blocked"
	CodeInvalidEvent    = "invalid_event"
	CodeValidationError = "validation_error"
	CodeNotRoomMember   = "not_room_member"
	CodeRateLimited     = "rate_limited"
	CodeInternalError   = "internal_error"
)

var ErrUnknownEvent = errs.New("unknown event")

// Inbound is the closed set of client events. Only the types below
// implement it.
type Inbound interface {
	EventName() string
	inbound()
}

type SendMessage struct {
	ReceiverUserID string `json:"receiver_user_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

type Typing struct {
	RoomID string `json:"room_id" validate:"required"`
}

type StopTyping struct {
	RoomID string `json:"room_id" validate:"required"`
}

type ReadMessage struct {
	MessageID string `json:"message_id" validate:"required"`
}

type BlockUser struct {
	UserID string `json:"user_id" validate:"required"`
}

type UnblockUser struct {
	UserID string `json:"user_id" validate:"required"`
}

type Heartbeat struct{}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=online offline"`
}

type GetUserStatus struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
}

func (SendMessage) EventName() string   { return EventSendMessage }
func (Typing) EventName() string        { return EventTyping }
func (StopTyping) EventName() string    { return EventStopTyping }
func (ReadMessage) EventName() string   { return EventReadMessage }
func (BlockUser) EventName() string     { return EventBlockUser }
func (UnblockUser) EventName() string   { return EventUnblockUser }
func (Heartbeat) EventName() string     { return EventHeartbeat }
func (UpdateStatus) EventName() string  { return EventUpdateStatus }
func (GetUserStatus) EventName() string { return EventGetUserStatus }

func (SendMessage) inbound()   {}
func (Typing) inbound()        {}
func (StopTyping) inbound()    {}
func (ReadMessage) inbound()   {}
func (BlockUser) inbound()     {}
func (UnblockUser) inbound()   {}
func (Heartbeat) inbound()     {}
func (UpdateStatus) inbound()  {}
func (GetUserStatus) inbound() {}

var validate = validator.New()

// ParseFrame decodes the envelope. An error here means the peer sent
// something that is not a frame at all and the connection is dropped.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.WrapMsg(err, "unmarshal frame")
	}
	return &f, nil
}

// DecodeInbound turns a frame into its typed event. It returns
// ErrUnknownEvent for names outside the closed set and ErrArgs when the
// payload does not fit the event.
func DecodeInbound(f *Frame) (Inbound, error) {
	switch f.Event {
	case EventSendMessage:
		return decodeAs[SendMessage](f.Data)
	case EventTyping:
		return decodeAs[Typing](f.Data)
	case EventStopTyping:
		return decodeAs[StopTyping](f.Data)
	case EventReadMessage:
		return decodeAs[ReadMessage](f.Data)
	case EventBlockUser:
		return decodeAs[BlockUser](f.Data)
	case EventUnblockUser:
		return decodeAs[UnblockUser](f.Data)
	case EventHeartbeat:
		return Heartbeat{}, nil
	case EventUpdateStatus:
		return decodeAs[UpdateStatus](f.Data)
	case EventGetUserStatus:
		return decodeAs[GetUserStatus](f.Data)
	default:
		return nil, errs.WrapMsg(ErrUnknownEvent, f.Event)
	}
}

func decodeAs[T Inbound](raw json.RawMessage) (Inbound, error) {
	v, err := decode.Raw[T](raw)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(v); err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	return *v, nil
}

// Outbound is any event the server pushes to clients.
type Outbound interface {
	EventName() string
}

type NewMessage struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type UserStatus struct {
	UserID   string     `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen"`
}

type UserTyping struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type UserStopTyping struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type MessageRead struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

type UserBlocked struct {
	UserID string `json:"user_id"`
}

type UserUnblocked struct {
	UserID string `json:"user_id"`
}

type HeartbeatAck struct {
	ServerTime time.Time `json:"server_time"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (NewMessage) EventName() string     { return EventNewMessage }
func (UserStatus) EventName() string     { return EventUserStatus }
func (UserTyping) EventName() string     { return EventUserTyping }
func (UserStopTyping) EventName() string { return EventUserStopTyping }
func (MessageRead) EventName() string    { return EventMessageRead }
func (UserBlocked) EventName() string    { return EventUserBlocked }
func (UserUnblocked) EventName() string  { return EventUserUnblocked }
func (HeartbeatAck) EventName() string   { return EventHeartbeatAck }
func (ErrorEvent) EventName() string     { return EventError }

// Encode wraps ev in a frame envelope.
func Encode(ev Outbound) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal event", "event", ev.EventName())
	}
	out, err := json.Marshal(Frame{Event: ev.EventName(), Data: data})
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal frame", "event", ev.EventName())
	}
	return out, nil
}
