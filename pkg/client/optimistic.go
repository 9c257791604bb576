package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"classboard/pkg/types"
)

// pendingSend tracks one optimistic entry awaiting its server confirmation.
type pendingSend struct {
	localID string
	channel Channel
	kind    string
	content string
	timer   *time.Timer
}

// engine is the optimistic send and reconciliation engine. A locally
// authored message is appended to the log immediately under a provisional
// identity; when the server's confirmed copy comes back through the router
// it supersedes the provisional entry, so the user sees their message
// exactly once. Failed or unconfirmed sends are rolled back.
type engine struct {
	log            *Log
	prefix         string // session-scoped, makes local IDs unique across sessions
	confirmTimeout time.Duration
	notify         func(error)

	mu       sync.Mutex
	counter  int64
	pendings []*pendingSend // oldest first
}

func newEngine(log *Log, confirmTimeout time.Duration, notify func(error)) *engine {
	return &engine{
		log:            log,
		prefix:         uuid.NewString(),
		confirmTimeout: confirmTimeout,
		notify:         notify,
	}
}

// nextLocalID assigns a provisional identity: a session prefix plus a
// monotonic counter. A wall-clock value would not be collision-free.
func (e *engine) nextLocalID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter++
	return fmt.Sprintf("%s-%d", e.prefix, e.counter)
}

// stage appends a provisional entry for content authored by self and starts
// the confirmation timer. The append is synchronous: the message is visible
// before any network round trip.
func (e *engine) stage(ch Channel, entry Entry, content string) string {
	localID := e.nextLocalID()
	entry.LocalID = localID
	entry.Provisional = true
	e.log.Append(entry)

	p := &pendingSend{
		localID: localID,
		channel: ch,
		kind:    entry.Kind,
		content: content,
	}
	if e.confirmTimeout > 0 {
		p.timer = time.AfterFunc(e.confirmTimeout, func() {
			e.fail(localID, ErrConfirmTimeout)
		})
	}

	e.mu.Lock()
	e.pendings = append(e.pendings, p)
	e.mu.Unlock()
	return localID
}

// fail rolls back the provisional entry: the authoritative write was
// rejected, the transport refused the frame, or no confirmation arrived in
// time. The failure is surfaced as a notification, never as a crash.
func (e *engine) fail(localID string, cause error) {
	if !e.remove(localID) {
		return // already confirmed or rolled back
	}
	e.log.Remove(localID)
	if e.notify != nil {
		e.notify(fmt.Errorf("send failed: %w", cause))
	}
}

// reconcile merges a confirmed entry arriving from the router with any
// matching provisional copy. Matching is by channel, kind and content,
// oldest pending first; there is no correlation id on the wire. Entries
// without a provisional counterpart (other users' messages, own messages
// from another device) are appended as-is.
func (e *engine) reconcile(ch Channel, confirmed Entry, content string, ownMessage bool) {
	if ownMessage {
		if p := e.match(ch, confirmed.Kind, content); p != nil {
			if e.log.Supersede(p.localID, confirmed) {
				return
			}
			// Provisional entry vanished (channel switch); fall through and
			// let the log's dedup decide.
		}
	}
	e.log.Append(confirmed)
}

// match pops the oldest pending send matching the confirmed frame.
func (e *engine) match(ch Channel, kind, content string) *pendingSend {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.pendings {
		if p.channel.Equal(ch) && p.kind == kind && p.content == content {
			if p.timer != nil {
				p.timer.Stop()
			}
			e.pendings = append(e.pendings[:i], e.pendings[i+1:]...)
			return p
		}
	}
	return nil
}

// remove drops a pending send by local ID, stopping its timer.
func (e *engine) remove(localID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.pendings {
		if p.localID == localID {
			if p.timer != nil {
				p.timer.Stop()
			}
			e.pendings = append(e.pendings[:i], e.pendings[i+1:]...)
			return true
		}
	}
	return false
}

// dropChannel cancels interest in pending sends for a channel being left.
// An in-flight authoritative write is not cancelled; its late response is
// simply discarded because the channel no longer matches.
func (e *engine) dropChannel(ch Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.pendings[:0]
	for _, p := range e.pendings {
		if p.channel.Equal(ch) {
			if p.timer != nil {
				p.timer.Stop()
			}
			continue
		}
		kept = append(kept, p)
	}
	e.pendings = kept
}

// provisionalQuestion builds the locally rendered copy of a question.
func provisionalQuestion(classID int64, content string, self types.User) Entry {
	author := self
	return Entry{
		Kind: types.KindNewQuestion,
		Question: &types.Question{
			Content:   content,
			ClassID:   classID,
			StudentID: self.ID,
			Timestamp: time.Now(),
			Student:   &author,
			Answers:   []types.Answer{},
		},
	}
}

// provisionalAnswer builds the locally rendered copy of an answer.
func provisionalAnswer(questionID int64, content string, self types.User) Entry {
	author := self
	return Entry{
		Kind: types.KindNewAnswer,
		Answer: &types.Answer{
			Content:    content,
			QuestionID: questionID,
			TeacherID:  self.ID,
			Timestamp:  time.Now(),
			Teacher:    &author,
		},
	}
}

// provisionalMessage builds the locally rendered copy of a direct message.
func provisionalMessage(receiverID int64, content string, self types.User) Entry {
	return Entry{
		Kind: types.KindNewMessage,
		Message: &types.DirectMessage{
			SenderID:   self.ID,
			ReceiverID: receiverID,
			Content:    content,
			Timestamp:  time.Now(),
		},
	}
}
