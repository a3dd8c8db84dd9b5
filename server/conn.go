package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one live transport session belonging to a user. Outbound
// frames go through a buffered send channel drained by writePump, so
// a slow peer never blocks the goroutine delivering to it.
type Conn struct {
	ID     string
	UserID int64

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func newConn(userID int64, ws *websocket.Conn, sendBuffer int) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// push queues a frame without blocking. A full buffer or a closed
// connection reports false; the caller decides what to do with the
// delivery failure.
func (c *Conn) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the connection for teardown. Idempotent; the actual
// close frame is written by writePump, which owns the socket.
func (c *Conn) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

func (c *Conn) writePump(writeTimeout time.Duration) {
	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.ws.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
			c.ws.Close()
			return
		}
	}
}
