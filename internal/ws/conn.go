package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrQueueFull  = errors.New("outbound queue full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport is a live client connection as seen by a session.
type Transport interface {
	Subscriber
	ReadFrame() ([]byte, error)
	SendJSON(v any) error
	Info() ConnInfo
}

// Conn wraps a websocket with a bounded outbound queue drained by a single
// writer goroutine.
type Conn struct {
	ws     *websocket.Conn
	info   ConnInfo
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// Upgrade switches the request to the websocket protocol and starts the
// writer. The caller owns the reader side.
func Upgrade(c *gin.Context, info ConnInfo, logger *zap.Logger) (*Conn, error) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return nil, err
	}
	conn := newConn(raw, info, logger)
	go conn.writePump()
	return conn, nil
}

func newConn(raw *websocket.Conn, info ConnInfo, logger *zap.Logger) *Conn {
	raw.SetReadLimit(maxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Conn{
		ws:     raw,
		info:   info,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn_id", info.ConnID), zap.String("user_id", info.UserID)),
	}
}

// InfoFromRequest collects the connection metadata of a handshake.
func InfoFromRequest(r *http.Request, kind, resourceID, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      NewConnID(),
		Kind:        kind,
		ResourceID:  resourceID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (c *Conn) ID() string {
	return c.info.ConnID
}

func (c *Conn) Info() ConnInfo {
	return c.info
}

// Enqueue never blocks. A full queue means the client is too slow.
func (c *Conn) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendJSON queues a frame for this connection only.
func (c *Conn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.Enqueue(payload) {
		return nil
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

// ReadFrame blocks until the next text frame arrives or the connection fails.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close is idempotent. The writer flushes frames already queued, bounded by
// writeWait, then sends a close frame and closes the socket, which unblocks
// the reader. Frames enqueued after Close are refused.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, sharing one writeWait deadline.
func (c *Conn) flush() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case payload := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("flush failed", zap.Error(err), zap.Int("dropped", len(c.send)+1))
				return
			}
		default:
			return
		}
	}
}

// IsUnexpectedClose reports whether err ended the connection abnormally.
func IsUnexpectedClose(err error) bool {
	if err == nil || errors.Is(err, ErrConnClosed) {
		return false
	}
	return !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
