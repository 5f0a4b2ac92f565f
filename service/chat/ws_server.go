package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"PPAdmin/global/config"
	"PPAdmin/logger"
	chatmodel "PPAdmin/module/chat/model"
	usermodel "PPAdmin/module/user/model"
	"PPAdmin/tools/errs"
	"PPAdmin/tools/safe"
	"PPAdmin/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChatBackend is the chat protocol service as the socket layer uses it.
type ChatBackend interface {
	SendMessage(ctx context.Context, senderID, receiverID, content string) (*chatmodel.Room, *chatmodel.Message, error)
	RoomForMember(ctx context.Context, userID, roomID string) (*chatmodel.Room, error)
	MarkRead(ctx context.Context, userID, messageID string) (*chatmodel.Message, error)
	BlockUser(ctx context.Context, blockerID, blockedID string) error
	UnblockUser(ctx context.Context, blockerID, blockedID string) error
}

// PresenceBackend is the presence protocol service as the socket layer uses it.
type PresenceBackend interface {
	UpdateActivityStatus(ctx context.Context, accessToken, status string) (bool, error)
	StatusByUserIDs(ctx context.Context, userIDs []string) (map[string]usermodel.PresenceStatus, error)
	Touch(ctx context.Context, userID string)
}

// StatusRoomFunc names the room that carries a user's status changes.
type StatusRoomFunc func(userID string) string

// Server owns the socket endpoints. One instance per process.
type Server struct {
	cfg        config.WSConfig
	upgrader   websocket.Upgrader
	disp       *Dispatcher
	chat       ChatBackend
	presence   PresenceBackend
	verifier   *security.Verifier
	statusRoom StatusRoomFunc
	now        func() time.Time

	// 在途 session，包括关闭后的清理
	sessions sync.WaitGroup
}

type ServerDeps struct {
	Dispatcher *Dispatcher
	Chat       ChatBackend
	Presence   PresenceBackend
	Verifier   *security.Verifier
	StatusRoom StatusRoomFunc
}

func NewServer(cfg config.WSConfig, deps ServerDeps) *Server {
	safe.MustNotNil(deps.Dispatcher, "dispatcher")
	safe.MustNotNil(deps.Chat, "chat backend")
	safe.MustNotNil(deps.Presence, "presence backend")
	safe.MustNotNil(deps.Verifier, "verifier")
	safe.MustNotNil(deps.StatusRoom, "status room")
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		disp:       deps.Dispatcher,
		chat:       deps.Chat,
		presence:   deps.Presence,
		verifier:   deps.Verifier,
		statusRoom: deps.StatusRoom,
		now:        time.Now,
	}
}

func (s *Server) Registry() *Registry { return s.disp.Registry() }

// Wait blocks until every session handler has returned and its cleanup,
// presence offline included, has run. Call it after Registry().CloseAll().
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err())
	}
}

// session is one open socket plus its owner. Frames of a session are
// handled strictly in order on the read goroutine.
type session struct {
	srv     *Server
	userID  string
	token   string
	conn    *WsConn
	limiter *rate.Limiter
	handle  func(ctx context.Context, ev Inbound)
}

func (s *Server) newSession(userID string, ws *websocket.Conn) *session {
	sess := &session{
		srv:    s,
		userID: userID,
		conn:   NewWsConn(userID, ws, s.cfg.WriteWait),
	}
	if s.cfg.FramesPerSecond > 0 {
		burst := s.cfg.FrameBurst
		if burst <= 0 {
			burst = 1
		}
		sess.limiter = rate.NewLimiter(rate.Limit(s.cfg.FramesPerSecond), burst)
	}
	return sess
}

// HandleChat GET /ws/chat/:user_id
func (s *Server) HandleChat(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	s.sessions.Add(1)
	defer s.sessions.Done()
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败，Upgrade 已写回错误
		logger.Info("[WS] upgrade failed", zap.String("path", c.FullPath()), zap.Error(err))
		return
	}
	sess := s.newSession(userID, ws)
	sess.handle = sess.handleChat

	s.Registry().Connect(userID, sess.conn)
	logger.Info("[WS] chat connected", zap.String("user_id", userID), zap.String("socket_id", sess.conn.ID()), zap.Stringer("remote", sess.conn.Remote()))
	defer func() {
		s.Registry().Disconnect(userID, sess.conn)
		_ = sess.conn.CloseWith(websocket.CloseNormalClosure, "")
		logger.Info("[WS] chat disconnected", zap.String("user_id", userID), zap.String("socket_id", sess.conn.ID()))
	}()

	s.serve(c.Request.Context(), sess)
}

// HandleUser GET /ws/user/:token
func (s *Server) HandleUser(c *gin.Context) {
	token := c.Param("token")
	s.sessions.Add(1)
	defer s.sessions.Done()
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Info("[WS] upgrade failed", zap.String("path", c.FullPath()), zap.Error(err))
		return
	}

	userID, err := s.verifier.UserID(token)
	if err != nil {
		conn := NewWsConn("", ws, s.cfg.WriteWait)
		if payload, eerr := Encode(ErrorEvent{Code: CodeUnauthorized, Message: "invalid token"}); eerr == nil {
			_ = conn.Send(payload)
		}
		_ = conn.CloseWith(websocket.ClosePolicyViolation, "invalid token")
		logger.Info("[WS] presence rejected", zap.Error(err))
		return
	}

	sess := s.newSession(userID, ws)
	sess.token = token
	sess.handle = sess.handlePresence

	s.Registry().Connect(userID, sess.conn)
	logger.Info("[WS] presence connected", zap.String("user_id", userID), zap.String("socket_id", sess.conn.ID()))
	sess.presenceOnline(c.Request.Context())
	defer func() {
		s.Registry().Disconnect(userID, sess.conn)
		_ = sess.conn.CloseWith(websocket.CloseNormalClosure, "")
		// 请求 ctx 可能已取消，下线写库用独立超时
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sess.presenceOffline(ctx)
		logger.Info("[WS] presence disconnected", zap.String("user_id", userID), zap.String("socket_id", sess.conn.ID()))
	}()

	s.serve(c.Request.Context(), sess)
}

// serve runs the read loop until the peer goes away or sends something
// that is not a frame.
func (s *Server) serve(ctx context.Context, sess *session) {
	ws := sess.conn.conn
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	safe.SafeGo("ws-ping", func() { s.pingLoop(sess.conn, done) })

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			logReadErr(sess, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, err := ParseFrame(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Info("[WS] malformed frame, closing",
				zap.String("user_id", sess.userID),
				zap.String("socket_id", sess.conn.ID()),
				zap.ByteString("sample", sample),
				zap.Error(err))
			return
		}

		if sess.limiter != nil && !sess.limiter.Allow() {
			framesTotal.WithLabelValues("rate_limited").Inc()
			sess.sendError(CodeRateLimited, "too many frames")
			continue
		}

		ev, err := DecodeInbound(f)
		if err != nil {
			framesTotal.WithLabelValues("invalid").Inc()
			if errors.Is(err, ErrUnknownEvent) {
				sess.sendError(CodeInvalidEvent, "unknown event: "+f.Event)
			} else {
				sess.sendError(CodeValidationError, errs.Reason(err))
			}
			continue
		}
		framesTotal.WithLabelValues(ev.EventName()).Inc()
		if err := safe.Recover("ws-"+ev.EventName(), func() { sess.handle(ctx, ev) }); err != nil {
			sess.sendError(CodeInternalError, "internal error")
		}
	}
}

func (s *Server) pingLoop(conn *WsConn, done <-chan struct{}) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.Ping(); err != nil {
				logger.Debug("[WS] ping failed", zap.String("socket_id", conn.ID()), zap.Error(err))
				return
			}
		}
	}
}

func logReadErr(sess *session, err error) {
	fields := []zap.Field{zap.String("user_id", sess.userID), zap.String("socket_id", sess.conn.ID()), zap.Error(err)}
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug("[WS] peer closed", fields...)
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("[WS] read timeout", fields...)
	default:
		logger.Info("[WS] read err", fields...)
	}
}

func (sess *session) send(ev Outbound) {
	payload, err := Encode(ev)
	if err != nil {
		logger.Error("[WS] encode", zap.String("event", ev.EventName()), zap.Error(err))
		return
	}
	if err := sess.conn.Send(payload); err != nil {
		logger.Debug("[WS] send failed", zap.String("socket_id", sess.conn.ID()), zap.Error(err))
	}
}

func (sess *session) sendError(code, msg string) {
	sess.send(ErrorEvent{Code: code, Message: msg})
}
