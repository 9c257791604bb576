package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is left to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// ChatDispatcher receives direct-message send requests read off a chat
// connection. Implemented by the hub.
type ChatDispatcher interface {
	DispatchChat(senderID int64, send types.ChatSend)
}

// Handler upgrades HTTP requests to websockets and runs their read loops.
type Handler struct {
	registry   *Registry
	roster     interfaces.RosterManager
	dispatcher ChatDispatcher
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, roster interfaces.RosterManager, dispatcher ChatDispatcher) *Handler {
	return &Handler{
		registry:   registry,
		roster:     roster,
		dispatcher: dispatcher,
	}
}

// ServeQA joins a user to a class Q&A room. The caller has already parsed
// the class and user IDs; membership is validated before the upgrade so
// rejections arrive as plain HTTP errors.
func (h *Handler) ServeQA(w http.ResponseWriter, r *http.Request, classID, userID int64) {
	if err := h.roster.ValidateMembership(r.Context(), classID, userID); err != nil {
		switch err {
		case interfaces.ErrClassNotFound:
			http.Error(w, "class not found", http.StatusNotFound)
		case interfaces.ErrNotEnrolled:
			http.Error(w, "not a member of this class", http.StatusForbidden)
		default:
			http.Error(w, "membership validation failed", http.StatusInternalServerError)
		}
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := NewQAConnection(raw, userID, classID)
	if err := h.registry.AddQA(conn); err != nil {
		log.Printf("failed to register qa connection: %v", err)
		_ = conn.Close()
		return
	}
	log.Printf("qa connect: user=%d class=%d", userID, classID)

	go h.runQA(conn)
}

// ServeChat attaches a user's direct-message websocket.
func (h *Handler) ServeChat(w http.ResponseWriter, r *http.Request, userID int64) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := NewChatConnection(raw, userID)
	if err := h.registry.AddChat(conn); err != nil {
		log.Printf("failed to register chat connection: %v", err)
		_ = conn.Close()
		return
	}
	log.Printf("chat connect: user=%d", userID)

	go h.runChat(conn)
}

// runQA keeps a Q&A connection alive. Clients never send application
// frames on this channel; questions and answers arrive over REST. Frames
// are read only to drive the heartbeat and detect closure.
func (h *Handler) runQA(conn *Connection) {
	defer func() {
		h.registry.RemoveQA(conn)
		_ = conn.Close()
		log.Printf("qa disconnect: user=%d class=%d", conn.UserID(), conn.ClassID())
	}()

	h.readPump(conn, func(data []byte) {
		// Drop unexpected inbound frames.
	})
}

// runChat reads direct-message sends off a chat connection and hands them
// to the dispatcher.
func (h *Handler) runChat(conn *Connection) {
	defer func() {
		h.registry.RemoveChat(conn)
		_ = conn.Close()
		log.Printf("chat disconnect: user=%d", conn.UserID())
	}()

	h.readPump(conn, func(data []byte) {
		var send types.ChatSend
		if err := json.Unmarshal(data, &send); err != nil {
			log.Printf("malformed chat frame from user %d: %v", conn.UserID(), err)
			return
		}
		h.dispatcher.DispatchChat(conn.UserID(), send)
	})
}

// readPump runs the heartbeat and read loop until the peer goes away.
// 60 second read deadline with 30 second pings.
func (h *Handler) readPump(conn *Connection, onFrame func([]byte)) {
	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error for user %d: %v", conn.UserID(), err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			onFrame(data)
		}
	}
}
