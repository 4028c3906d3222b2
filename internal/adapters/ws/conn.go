// Package ws lets browser peers use the control channel: one WebSocket
// message carries one control payload, no length prefix.
package ws

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Conn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Upgrade switches an HTTP request to a WebSocket frame connection.
func Upgrade(w http.ResponseWriter, r *http.Request, maxFrame int) (*Conn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(c, maxFrame), nil
}

func NewConn(c *websocket.Conn, maxFrame int) *Conn {
	if maxFrame <= 0 || maxFrame > wire.MaxFrameSize {
		maxFrame = wire.MaxFrameSize
	}
	c.SetReadLimit(int64(maxFrame))
	return &Conn{conn: c}
}

func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, net.ErrClosed
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, wire.ErrFrameTooLarge
		}
		return nil, err
	}
	return data, nil
}

// WriteFrame sends JSON payloads as text messages and everything else as
// binary.
func (c *Conn) WriteFrame(payload []byte) error {
	kind := websocket.BinaryMessage
	if len(payload) > 0 && payload[0] == '{' {
		kind = websocket.TextMessage
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(kind, payload)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *Conn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *Conn) Close() error                       { return c.conn.Close() }
