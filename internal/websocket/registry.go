package websocket

import (
	"log"
	"sync"
)

// Registry tracks live connections: Q&A connections grouped by class room,
// chat connections keyed by user. A user holds at most one connection per
// room and one chat connection; a newer connection replaces the older one.
type Registry struct {
	mu        sync.RWMutex
	classRoom map[int64]map[int64]*Connection // classID -> userID -> conn
	chatUsers map[int64]*Connection           // userID -> conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		classRoom: make(map[int64]map[int64]*Connection),
		chatUsers: make(map[int64]*Connection),
	}
}

// AddQA registers a Q&A connection in its class room, replacing any prior
// connection the same user held there.
func (r *Registry) AddQA(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	room, ok := r.classRoom[conn.ClassID()]
	if !ok {
		room = make(map[int64]*Connection)
		r.classRoom[conn.ClassID()] = room
	}
	old := room[conn.UserID()]
	room[conn.UserID()] = conn
	r.mu.Unlock()

	if old != nil && old != conn {
		// Close outside the lock; Close is idempotent.
		go old.Close()
	}
	return nil
}

// AddChat registers a user's chat connection, replacing any prior one.
func (r *Registry) AddChat(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	old := r.chatUsers[conn.UserID()]
	r.chatUsers[conn.UserID()] = conn
	r.mu.Unlock()

	if old != nil && old != conn {
		go old.Close()
	}
	return nil
}

// RemoveQA drops a Q&A connection from its room if it is still the
// registered one. A connection replaced by a reconnect is left alone.
func (r *Registry) RemoveQA(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.classRoom[conn.ClassID()]
	if !ok {
		return
	}
	if room[conn.UserID()] == conn {
		delete(room, conn.UserID())
		if len(room) == 0 {
			delete(r.classRoom, conn.ClassID())
		}
	}
}

// RemoveChat drops a user's chat connection if it is still the registered one.
func (r *Registry) RemoveChat(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chatUsers[conn.UserID()] == conn {
		delete(r.chatUsers, conn.UserID())
	}
}

// RoomConnections returns a snapshot of the connections in a class room.
func (r *Registry) RoomConnections(classID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.classRoom[classID]
	conns := make([]*Connection, 0, len(room))
	for _, c := range room {
		conns = append(conns, c)
	}
	return conns
}

// ChatConnection returns a user's chat connection, or nil when offline.
func (r *Registry) ChatConnection(userID int64) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chatUsers[userID]
}

// CloseAll closes every registered connection and clears the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := r.classRoom
	chats := r.chatUsers
	r.classRoom = make(map[int64]map[int64]*Connection)
	r.chatUsers = make(map[int64]*Connection)
	r.mu.Unlock()

	n := 0
	for _, room := range rooms {
		for _, c := range room {
			c.Close()
			n++
		}
	}
	for _, c := range chats {
		c.Close()
		n++
	}
	if n > 0 {
		log.Printf("registry: closed %d connections", n)
	}
}

// Counts reports the number of live Q&A and chat connections.
func (r *Registry) Counts() (qa, chat int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.classRoom {
		qa += len(room)
	}
	return qa, len(r.chatUsers)
}
