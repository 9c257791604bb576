package router

import (
	"context"
	"fmt"
	"log"
	"time"

	ws "classboard/internal/websocket"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Router validates, persists, and delivers realtime traffic. Persistence
// happens before any delivery so a crash between the two never loses an
// acknowledged message.
type Router struct {
	store    interfaces.MessageStore
	registry *ws.Registry
	limiter  *RateLimiter
}

// NewRouter creates a message router.
func NewRouter(store interfaces.MessageStore, registry *ws.Registry) *Router {
	return &Router{
		store:    store,
		registry: registry,
		limiter:  NewRateLimiter(),
	}
}

// RouteChat handles one direct-message send: validate, rate-limit,
// persist, then push to the receiver's and the sender's live chat
// connections. The sender copy confirms the optimistic entry on the
// sending client.
func (r *Router) RouteChat(ctx context.Context, senderID int64, send types.ChatSend) error {
	msg := &types.DirectMessage{
		SenderID:   senderID,
		ReceiverID: send.ReceiverID,
		Content:    send.Content,
		Timestamp:  time.Now().UTC(),
	}
	if err := types.ValidateDirectMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if !r.limiter.Allow(senderID) {
		log.Printf("rate limit exceeded for user %d", senderID)
		return ErrRateLimitExceeded
	}

	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	env, err := types.MessageEnvelope(msg)
	if err != nil {
		return fmt.Errorf("failed to build message envelope: %w", err)
	}
	r.deliverChat(msg.ReceiverID, env)
	if msg.SenderID != msg.ReceiverID {
		r.deliverChat(msg.SenderID, env)
	}
	return nil
}

func (r *Router) deliverChat(userID int64, env interface{}) {
	conn := r.registry.ChatConnection(userID)
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("chat delivery to user %d failed: %v", userID, err)
	}
}

// BroadcastQuestion pushes a persisted question to everyone in its class
// room.
func (r *Router) BroadcastQuestion(q *types.Question) {
	env, err := types.QuestionEnvelope(q)
	if err != nil {
		log.Printf("failed to build question envelope: %v", err)
		return
	}
	r.broadcast(q.ClassID, env)
}

// BroadcastAnswer pushes a persisted answer to everyone in the class room
// holding its question.
func (r *Router) BroadcastAnswer(classID int64, a *types.Answer) {
	env, err := types.AnswerEnvelope(a)
	if err != nil {
		log.Printf("failed to build answer envelope: %v", err)
		return
	}
	r.broadcast(classID, env)
}

func (r *Router) broadcast(classID int64, env interface{}) {
	conns := r.registry.RoomConnections(classID)
	for _, conn := range conns {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("broadcast to user %d in class %d failed: %v", conn.UserID(), classID, err)
		}
	}
}

// StartCleanup prunes idle rate-limiter state until the context ends.
func (r *Router) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.limiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
