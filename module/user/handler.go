package user

import (
	"net/http"
	"strings"

	"PPAdmin/global"
	"PPAdmin/module/user/model"
	"PPAdmin/module/user/service"
	"PPAdmin/tools/errs"
	"PPAdmin/tools/security"

	"github.com/gin-gonic/gin"
)

const maxStatusQuery = 100

type Handler struct {
	presence *service.PresenceService
	jwt      security.Options
}

func NewHandler(presence *service.PresenceService, jwt security.Options) *Handler {
	return &Handler{presence: presence, jwt: jwt}
}

// HandlerStatus GET /api/users/status?user_ids=a,b
func (h *Handler) HandlerStatus(c *gin.Context) {
	var ids []string
	for _, part := range c.QueryArray("user_ids") {
		for _, id := range strings.Split(part, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 || len(ids) > maxStatusQuery {
		global.Fail(c, errs.ErrArgs.WrapMsg("user_ids must hold 1 to 100 ids"))
		return
	}
	statuses, err := h.presence.StatusByUserIDs(c.Request.Context(), ids)
	if err != nil {
		global.Fail(c, err)
		return
	}
	out := make([]model.PresenceStatus, 0, len(statuses))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, statuses[id])
	}
	c.JSON(http.StatusOK, global.Success("", out))
}

type loginReq struct {
	UserID     string `json:"user_id" binding:"required"`
	DeviceType string `json:"device_type" binding:"omitempty,oneof=web ios android pc"`
}

// HandlerLogin POST /api/users/login opens a device session and returns its
// token. Only mounted in dev; real logins live in the account service.
func (h *Handler) HandlerLogin(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	d, err := h.presence.RegisterDevice(c.Request.Context(), h.jwt, req.UserID, req.DeviceType)
	if err != nil {
		global.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success("", gin.H{
		"token":  d.AccessToken,
		"device": d,
	}))
}
