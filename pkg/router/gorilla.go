package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UpgradeConfig tunes the gorilla/websocket transport.
type UpgradeConfig struct {
	// CheckOrigin decides whether an upgrade request from the given
	// origin is acceptable. Nil permits same-origin requests only,
	// which is gorilla's default.
	CheckOrigin func(r *http.Request) bool
	// ReadLimit caps the size of a single client frame in bytes.
	// Zero means 64 KiB.
	ReadLimit int64
	// WriteTimeout bounds each outbound write. Zero means 10 seconds.
	WriteTimeout time.Duration
}

const (
	defaultReadLimit    = 64 << 10
	defaultWriteTimeout = 10 * time.Second
)

// wsConn adapts a gorilla connection to the Conn interface. The
// producer pumps and the read loop write concurrently, so every write
// goes through the mutex.
type wsConn struct {
	c       *websocket.Conn
	req     *http.Request
	mu      sync.Mutex
	timeout time.Duration
}

func (w *wsConn) WriteFrame(frame *codec.ServerFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.c.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.c.WriteJSON(frame)
}

func (w *wsConn) Request() *http.Request {
	return w.req
}

// Upgrade promotes an HTTP request to a WebSocket connection and
// serves it until the client disconnects. It blocks for the life of
// the connection; the caller's handler goroutine becomes the read
// loop.
func (e *SubscriptionEngine) Upgrade(w http.ResponseWriter, r *http.Request, cfg UpgradeConfig) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		return err
	}

	limit := cfg.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	wc := &wsConn{c: conn, req: r, timeout: timeout}
	session := e.Open(wc)

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Debug("websocket closed", zap.Error(readErr))
			}
			break
		}
		session.Message(data)
	}

	session.Close()
	session.Wait()
	return conn.Close()
}
