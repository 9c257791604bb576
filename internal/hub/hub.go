package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"classboard/internal/router"
	"classboard/pkg/types"
)

type command struct {
	chatSender int64
	chatSend   *types.ChatSend
	question   *types.Question
	answer     *types.Answer
	classID    int64
}

// Hub serializes all routing work through one goroutine so ordering within
// a channel follows arrival order at the queue.
type Hub struct {
	router *router.Router
	queue  chan command

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub creates a hub over the given router.
func NewHub(r *router.Router) *Hub {
	return &Hub{
		router: r,
		queue:  make(chan command, 1000),
	}
}

// Start launches the routing loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running = true

	h.router.StartCleanup(ctx)
	go h.run(ctx)

	log.Printf("hub started")
	return nil
}

// Stop drains nothing; queued work racing a shutdown is dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}

	h.cancel()
	<-h.done
	h.running = false

	log.Printf("hub stopped")
	return nil
}

// IsRunning reports whether the routing loop is live.
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case cmd := <-h.queue:
			h.handle(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, cmd command) {
	switch {
	case cmd.chatSend != nil:
		opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := h.router.RouteChat(opCtx, cmd.chatSender, *cmd.chatSend); err != nil {
			log.Printf("chat route failed for sender %d: %v", cmd.chatSender, err)
		}
	case cmd.question != nil:
		h.router.BroadcastQuestion(cmd.question)
	case cmd.answer != nil:
		h.router.BroadcastAnswer(cmd.classID, cmd.answer)
	}
}

// DispatchChat enqueues a direct-message send read off a chat websocket.
func (h *Hub) DispatchChat(senderID int64, send types.ChatSend) {
	h.enqueue(command{chatSender: senderID, chatSend: &send})
}

// BroadcastQuestion enqueues a persisted question for class delivery.
func (h *Hub) BroadcastQuestion(q *types.Question) {
	h.enqueue(command{question: q})
}

// BroadcastAnswer enqueues a persisted answer for class delivery.
func (h *Hub) BroadcastAnswer(classID int64, a *types.Answer) {
	h.enqueue(command{answer: a, classID: classID})
}

func (h *Hub) enqueue(cmd command) {
	select {
	case h.queue <- cmd:
	default:
		log.Printf("hub queue full, dropping command")
	}
}
