package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel kinds a server-side connection can serve.
const (
	chanQA   = "qa"
	chanChat = "chat"
)

// Connection wraps one websocket with a single-writer goroutine; gorilla
// websocket writes must never be issued concurrently.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	userID    int64
	classID   int64 // set for Q&A connections
	kind      string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewQAConnection wraps a websocket joined to a class Q&A room.
func NewQAConnection(conn *websocket.Conn, userID, classID int64) *Connection {
	return newConnection(conn, userID, classID, chanQA)
}

// NewChatConnection wraps a user's direct-message websocket.
func NewChatConnection(conn *websocket.Conn, userID int64) *Connection {
	return newConnection(conn, userID, 0, chanChat)
}

func newConnection(conn *websocket.Conn, userID, classID int64, kind string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		userID:  userID,
		classID: classID,
		kind:    kind,
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a value for delivery. A slow client that cannot drain
// its buffer within the timeout loses the frame rather than blocking the
// sender.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// UserID returns the connected user.
func (c *Connection) UserID() int64 { return c.userID }

// ClassID returns the joined class for Q&A connections, 0 for chat.
func (c *Connection) ClassID() int64 { return c.classID }

// IsQA reports whether the connection serves a class Q&A room.
func (c *Connection) IsQA() bool { return c.kind == chanQA }
