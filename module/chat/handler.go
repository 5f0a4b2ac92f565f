package chat

import (
	"net/http"
	"time"

	"PPAdmin/global"
	midsec "PPAdmin/middleware/security"
	"PPAdmin/module/chat/service"
	wschat "PPAdmin/service/chat"
	"PPAdmin/tools/errs"

	"github.com/gin-gonic/gin"
)

const msgSent = "Message send successfully"

type Handler struct {
	svc  *service.ChatService
	disp *wschat.Dispatcher
}

func NewHandler(svc *service.ChatService, disp *wschat.Dispatcher) *Handler {
	return &Handler{svc: svc, disp: disp}
}

type sendReq struct {
	ReceiverUserID string `json:"receiver_user_id" binding:"required"`
	Content        string `json:"content" binding:"required,max=4000"`
}

type sendResp struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HandlerSend POST /api/chat/send
func (h *Handler) HandlerSend(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	senderID := midsec.UserID(c)
	room, msg, err := h.svc.SendMessage(c.Request.Context(), senderID, req.ReceiverUserID, req.Content)
	if err != nil {
		global.Fail(c, err)
		return
	}

	ev := wschat.NewMessage{
		RoomID:    room.ID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	// 按房间成员推送，id 已由 SendMessage 规整
	for _, uid := range room.Members {
		h.disp.EmitUserEvent(uid, ev)
	}

	c.JSON(http.StatusCreated, global.Success(msgSent, sendResp{
		RoomID:    room.ID,
		MessageID: msg.ID,
		CreatedAt: msg.CreatedAt,
	}))
}

type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// HandlerMessages GET /api/chat/rooms/:room_id/messages
func (h *Handler) HandlerMessages(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	msgs, page, err := h.svc.ListMessages(c.Request.Context(), midsec.UserID(c), c.Param("room_id"), q.Page, q.Limit)
	if err != nil {
		global.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Page(msgs, page))
}
