package client

import (
	"fmt"
	"sync"

	"classboard/pkg/types"
)

// Entry is one materialized message in a channel's log. Exactly one of
// Question, Answer or Message is set, matching Kind.
type Entry struct {
	// LocalID is the provisional identity assigned by the optimistic send
	// engine. Empty for entries that arrived already confirmed.
	LocalID     string
	Provisional bool
	Kind        string

	Question *types.Question
	Answer   *types.Answer
	Message  *types.DirectMessage
}

// serverKey returns a dedup key for confirmed entries, "" while provisional.
func (e Entry) serverKey() string {
	if e.Provisional {
		return ""
	}
	switch e.Kind {
	case types.KindNewQuestion:
		return fmt.Sprintf("%s/%d", e.Kind, e.Question.ID)
	case types.KindNewAnswer:
		return fmt.Sprintf("%s/%d", e.Kind, e.Answer.ID)
	case types.KindNewMessage:
		return fmt.Sprintf("%s/%d", e.Kind, e.Message.ID)
	}
	return ""
}

// Log is the per-channel append-only, arrival-ordered sequence the UI
// renders. It is mutated only by the router and the optimistic send engine.
type Log struct {
	mu      sync.RWMutex
	channel Channel
	entries []Entry
	seen    map[string]bool // confirmed server keys, guards history/live races
}

// NewLog creates an empty log bound to no channel.
func NewLog() *Log {
	return &Log{seen: make(map[string]bool)}
}

// Channel returns the channel the log currently tracks.
func (l *Log) Channel() Channel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.channel
}

// Replace discards the prior channel's entries and installs the fetched
// history for the new channel, in the order the server returned it.
func (l *Log) Replace(ch Channel, history []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.channel = ch
	l.entries = make([]Entry, 0, len(history))
	l.seen = make(map[string]bool, len(history))
	for _, e := range history {
		if key := e.serverKey(); key != "" {
			if l.seen[key] {
				continue
			}
			l.seen[key] = true
		}
		l.entries = append(l.entries, e)
	}
}

// Append adds an entry at the tail, preserving arrival order. Confirmed
// entries already present (same server identity) are dropped, which covers
// a live push racing the history fetch. Reports whether the entry was added.
func (l *Log) Append(e Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key := e.serverKey(); key != "" {
		if l.seen[key] {
			return false
		}
		l.seen[key] = true
	}
	l.entries = append(l.entries, e)
	return true
}

// Supersede replaces the provisional entry identified by localID with its
// confirmed counterpart, keeping its position. Reports whether a provisional
// entry was found; when it was not, the caller should Append instead.
func (l *Log) Supersede(localID string, confirmed Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].Provisional && l.entries[i].LocalID == localID {
			if key := confirmed.serverKey(); key != "" {
				if l.seen[key] {
					// Confirmed copy already arrived separately; just drop
					// the provisional one.
					l.entries = append(l.entries[:i], l.entries[i+1:]...)
					return true
				}
				l.seen[key] = true
			}
			l.entries[i] = confirmed
			return true
		}
	}
	return false
}

// Remove deletes the provisional entry identified by localID. Used when a
// send fails or times out. Reports whether an entry was removed.
func (l *Log) Remove(localID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].Provisional && l.entries[i].LocalID == localID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns a copy of the current log for rendering.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
