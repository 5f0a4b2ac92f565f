package chat

import (
	"net"
	"sync"
	"time"

	"PPAdmin/tools/errs"
	"PPAdmin/tools/ids"

	"github.com/gorilla/websocket"
)

// Socket is one live bidirectional connection as seen by the registry and
// the dispatcher. Implementations must allow Send from several goroutines.
type Socket interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

var ErrSocketClosed = errs.New("socket closed")

// WsConn adapts a gorilla websocket connection to Socket. gorilla allows
// one concurrent writer, so every write, pings included, goes through mu.
type WsConn struct {
	id        string
	userID    string
	conn      *websocket.Conn
	writeWait time.Duration
	remote    net.Addr
	createdAt time.Time

	mu     sync.Mutex
	closed bool
}

func NewWsConn(userID string, conn *websocket.Conn, writeWait time.Duration) *WsConn {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &WsConn{
		id:        ids.SocketID(),
		userID:    userID,
		conn:      conn,
		writeWait: writeWait,
		remote:    conn.RemoteAddr(),
		createdAt: time.Now(),
	}
}

func (w *WsConn) ID() string       { return w.id }
func (w *WsConn) UserID() string   { return w.userID }
func (w *WsConn) Remote() net.Addr { return w.remote }

func (w *WsConn) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrSocketClosed
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeWait)); err != nil {
		return errs.Wrap(err)
	}
	return errs.Wrap(w.conn.WriteMessage(websocket.TextMessage, payload))
}

// Ping writes a control ping under the same write lock as Send.
func (w *WsConn) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrSocketClosed
	}
	return errs.Wrap(w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait)))
}

// CloseWith sends a close frame with code and reason, then closes the
// connection. Safe to call more than once.
func (w *WsConn) CloseWith(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeWait))
	return w.conn.Close()
}

func (w *WsConn) Close() error {
	return w.CloseWith(websocket.CloseGoingAway, "server shutdown")
}
