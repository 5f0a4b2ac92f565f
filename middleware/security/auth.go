package security

import (
	"strings"

	"PPAdmin/global"
	"PPAdmin/tools/errs"

	"github.com/gin-gonic/gin"
)

// context keys
const (
	PPCtxAuthKey   = "authorization" // string, raw token
	PPCtxUserIDKey = "user_id"       // string, token subject
)

// TokenVerifier resolves a bearer token to its user id.
type TokenVerifier interface {
	UserID(token string) (string, error)
}

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
	}
}

// Middleware rejects requests without a valid token with 401 and stores
// the token subject under PPCtxUserIDKey.
func Middleware(v TokenVerifier, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := extractToken(c, opts)
		if token == "" {
			global.Fail(c, errs.ErrTokenInvalid.WrapMsg("missing token"))
			return
		}
		userID, err := v.UserID(token)
		if err != nil {
			global.Fail(c, err)
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxUserIDKey, userID)
		c.Next()
	}
}

func extractToken(c *gin.Context, opts *Options) string {
	// Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > len("bearer ") &&
			strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	if opts.HeaderToken != "" && !strings.EqualFold(opts.HeaderToken, "authorization") {
		return strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	}
	return ""
}

// UserID returns the authenticated user set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}
