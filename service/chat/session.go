package chat

import (
	"context"
	"errors"
	"time"

	"PPAdmin/logger"
	usermodel "PPAdmin/module/user/model"
	"PPAdmin/tools/errs"

	"go.uber.org/zap"
)

// errorCode maps a service error onto the error frame code sent back to
// the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrNoPermission):
		return CodeUserBlocked
	case errors.Is(err, errs.ErrArgs):
		return CodeValidationError
	case errors.Is(err, errs.ErrNotMember), errors.Is(err, errs.ErrRecordNotFound):
		return CodeNotRoomMember
	default:
		return CodeInternalError
	}
}

func (sess *session) fail(ev Inbound, err error) {
	code := errorCode(err)
	msg := errs.Reason(err)
	if code == CodeInternalError {
		logger.Error("[WS] handle event", zap.String("event", ev.EventName()), zap.String("user_id", sess.userID), zap.Error(err))
		msg = "internal error"
	}
	sess.sendError(code, msg)
}

// handleChat runs one chat socket event.
func (sess *session) handleChat(ctx context.Context, ev Inbound) {
	disp := sess.srv.disp
	reg := disp.Registry()

	switch e := ev.(type) {
	case SendMessage:
		room, msg, err := sess.srv.chat.SendMessage(ctx, sess.userID, e.ReceiverUserID, e.Content)
		if err != nil {
			sess.fail(ev, err)
			return
		}
		reg.JoinRoom(room.ID, sess.userID)
		reg.JoinRoom(room.ID, e.ReceiverUserID)
		disp.EmitRoomEvent(room.ID, NewMessage{
			RoomID:    room.ID,
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})

	case Typing:
		if _, err := sess.srv.chat.RoomForMember(ctx, sess.userID, e.RoomID); err != nil {
			sess.fail(ev, err)
			return
		}
		reg.JoinRoom(e.RoomID, sess.userID)
		disp.EmitRoomEvent(e.RoomID, UserTyping{RoomID: e.RoomID, UserID: sess.userID})

	case StopTyping:
		if _, err := sess.srv.chat.RoomForMember(ctx, sess.userID, e.RoomID); err != nil {
			sess.fail(ev, err)
			return
		}
		reg.JoinRoom(e.RoomID, sess.userID)
		disp.EmitRoomEvent(e.RoomID, UserStopTyping{RoomID: e.RoomID, UserID: sess.userID})

	case ReadMessage:
		msg, err := sess.srv.chat.MarkRead(ctx, sess.userID, e.MessageID)
		if err != nil {
			sess.fail(ev, err)
			return
		}
		disp.EmitRoomEvent(msg.RoomID, MessageRead{RoomID: msg.RoomID, MessageID: msg.ID, UserID: sess.userID})

	case BlockUser:
		if err := sess.srv.chat.BlockUser(ctx, sess.userID, e.UserID); err != nil {
			sess.fail(ev, err)
			return
		}
		disp.EmitUserEvent(e.UserID, UserBlocked{UserID: sess.userID})

	case UnblockUser:
		if err := sess.srv.chat.UnblockUser(ctx, sess.userID, e.UserID); err != nil {
			sess.fail(ev, err)
			return
		}
		disp.EmitUserEvent(e.UserID, UserUnblocked{UserID: sess.userID})

	case Heartbeat:
		sess.send(HeartbeatAck{ServerTime: sess.srv.now().UTC()})

	case UpdateStatus, GetUserStatus:
		sess.sendError(CodeInvalidEvent, "unknown event: "+ev.EventName())
	}
}

// handlePresence runs one presence socket event.
func (sess *session) handlePresence(ctx context.Context, ev Inbound) {
	switch e := ev.(type) {
	case UpdateStatus:
		if err := sess.setStatus(ctx, e.Status); err != nil {
			sess.fail(ev, err)
		}

	case GetUserStatus:
		statuses, err := sess.srv.presence.StatusByUserIDs(ctx, e.UserIDs)
		if err != nil {
			sess.fail(ev, err)
			return
		}
		reg := sess.srv.disp.Registry()
		for _, uid := range e.UserIDs {
			st, ok := statuses[uid]
			if !ok {
				now := sess.srv.now().UTC()
				st = usermodel.PresenceStatus{UserID: uid, Status: usermodel.StatusOffline, LastSeen: &now}
			}
			reg.JoinRoom(sess.srv.statusRoom(uid), sess.userID)
			sess.srv.disp.EmitUserEvent(sess.userID, UserStatus{UserID: uid, Status: st.Status, LastSeen: st.LastSeen})
		}

	case Heartbeat:
		sess.srv.presence.Touch(ctx, sess.userID)
		sess.send(HeartbeatAck{ServerTime: sess.srv.now().UTC()})

	case SendMessage, Typing, StopTyping, ReadMessage, BlockUser, UnblockUser:
		sess.sendError(CodeInvalidEvent, "unknown event: "+ev.EventName())
	}
}

// setStatus persists status for this device session and tells everyone
// watching the user.
func (sess *session) setStatus(ctx context.Context, status string) error {
	ok, err := sess.srv.presence.UpdateActivityStatus(ctx, sess.token, status)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("[WS] no device session for token", zap.String("user_id", sess.userID))
	}
	var lastSeen *time.Time
	if status == usermodel.StatusOffline {
		now := sess.srv.now().UTC()
		lastSeen = &now
	}
	sess.srv.disp.EmitRoomEvent(sess.srv.statusRoom(sess.userID), UserStatus{
		UserID:   sess.userID,
		Status:   status,
		LastSeen: lastSeen,
	})
	return nil
}

func (sess *session) presenceOnline(ctx context.Context) {
	if err := sess.setStatus(ctx, usermodel.StatusOnline); err != nil {
		logger.Error("[WS] mark online", zap.String("user_id", sess.userID), zap.Error(err))
	}
}

func (sess *session) presenceOffline(ctx context.Context) {
	if err := sess.setStatus(ctx, usermodel.StatusOffline); err != nil {
		logger.Error("[WS] mark offline", zap.String("user_id", sess.userID), zap.Error(err))
	}
}
