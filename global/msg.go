package global

import (
	"net/http"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/tools/errs"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Msg 统一响应体
type Msg struct {
	Status     string                `json:"status"`
	Message    string                `json:"message,omitempty"`
	Data       any                   `json:"data,omitempty"`
	Pagination *mongoutil.Pagination `json:"pagination,omitempty"`
}

func Success(message string, data any) *Msg {
	return &Msg{Status: StatusSuccess, Message: message, Data: data}
}

func Page(data any, p mongoutil.Pagination) *Msg {
	return &Msg{Status: StatusSuccess, Data: data, Pagination: &p}
}

// Fail writes err as {status:"error", message} with the status its code maps to.
func Fail(c *gin.Context, err error) {
	ce := errs.AsCode(err)
	status := ce.HTTPStatus()
	msg := errs.Reason(err)
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, &Msg{Status: StatusError, Message: msg})
}
