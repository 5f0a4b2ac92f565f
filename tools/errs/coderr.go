package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	ArgsError           = 400
	TokenInvalidError   = 401
	NoPermissionError   = 403
	RecordNotFoundError = 404
	DuplicateKeyError   = 409
	ServerInternalError = 500

	NotMemberError = 4031 // 非房间成员
)

var (
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrNoPermission   = NewCodeError(NoPermissionError, "NoPermissionError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrDuplicateKey   = NewCodeError(DuplicateKeyError, "DuplicateKeyError")
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrNotMember      = NewCodeError(NotMemberError, "NotMemberError")
)

// CodeError carries a stable numeric code next to the message so that
// transports can translate it without string matching.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

// Wrap returns a copy of e with a stack attached.
func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e.clone())
}

// WrapMsg returns a copy of e with msg and the key/value pairs appended to
// the detail, and a stack attached.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(retErr)
}

// Is matches any CodeError carrying the same code, so errors.Is works
// against the package-level values after WrapMsg has cloned them.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	if e == nil || t == nil {
		return e == t
	}
	return e.Code == t.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// HTTPStatus maps the code onto an HTTP status; unknown codes are 500.
func (e *CodeError) HTTPStatus() int {
	switch e.Code {
	case ArgsError:
		return http.StatusBadRequest
	case TokenInvalidError:
		return http.StatusUnauthorized
	case NoPermissionError, NotMemberError:
		return http.StatusForbidden
	case RecordNotFoundError:
		return http.StatusNotFound
	case DuplicateKeyError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New builds a plain error with a stack.
func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

// AsCode extracts the CodeError in err's chain; anything else is reported
// as an internal error.
func AsCode(err error) *CodeError {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr
	}
	return ErrInternalServer
}

// Reason is the client-facing text of err: the message given to WrapMsg
// without its key/value pairs, or the code's default message.
func Reason(err error) string {
	ce := AsCode(err)
	if ce.Detail == "" {
		return ce.Msg
	}
	reason, _, _ := strings.Cut(ce.Detail, ", ")
	return reason
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
