package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"classboard/pkg/types"
)

// Channel identifies a logical conversation: one class Q&A board or one
// pairwise direct-message thread. The zero value is "no channel".
type Channel struct {
	classID int64 // set for class channels
	userID  int64 // counterpart, set for direct channels
}

// ClassChannel addresses the shared Q&A board of a class.
func ClassChannel(classID int64) Channel {
	return Channel{classID: classID}
}

// DirectChannel addresses the conversation with one counterpart user.
func DirectChannel(userID int64) Channel {
	return Channel{userID: userID}
}

// IsZero reports whether no channel is addressed.
func (c Channel) IsZero() bool {
	return c.classID == 0 && c.userID == 0
}

// IsClass reports whether the channel is a class Q&A board.
func (c Channel) IsClass() bool {
	return c.classID != 0
}

// Counterpart returns the other user of a direct channel, 0 for class channels.
func (c Channel) Counterpart() int64 {
	return c.userID
}

// ClassID returns the class of a class channel, 0 for direct channels.
func (c Channel) ClassID() int64 {
	return c.classID
}

// Equal reports whether two channels address the same logical conversation.
func (c Channel) Equal(other Channel) bool {
	return c == other
}

// RoutingKey returns a stable key for logging and dispatch filtering.
func (c Channel) RoutingKey() string {
	if c.IsClass() {
		return fmt.Sprintf("class/%d", c.classID)
	}
	return fmt.Sprintf("direct/%d", c.userID)
}

// Address resolves the channel to a websocket endpoint. base is the server's
// HTTP base URL; the scheme is rewritten to ws/wss. Pure function of inputs.
func (c Channel) Address(base string, self types.User) (string, error) {
	if c.IsZero() {
		return "", ErrNoChannel
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if c.IsClass() {
		u.Path += fmt.Sprintf("/api/v1/qa/ws/%d", c.classID)
		// Browsers cannot set headers on websocket handshakes, so the
		// joining user rides the query string for the membership check.
		u.RawQuery = fmt.Sprintf("user_id=%d", self.ID)
	} else {
		// Chat transports are addressed by the connecting user, not the
		// counterpart: one socket carries all of the user's conversations.
		u.Path += fmt.Sprintf("/api/v1/chat/ws/%d", self.ID)
	}
	return u.String(), nil
}

// Belongs reports whether an inbound frame is relevant to this channel for
// the given local user. Frames for conversations not currently displayed are
// dropped by the router; the server still delivers them to the right
// recipient, so nothing is lost.
func (c Channel) Belongs(env *types.Envelope, self types.User) bool {
	if env == nil || c.IsZero() {
		return false
	}
	switch env.Kind {
	case types.KindNewQuestion:
		if !c.IsClass() {
			return false
		}
		var q types.Question
		if err := json.Unmarshal(env.Payload(), &q); err != nil {
			return false
		}
		return q.ClassID == c.classID
	case types.KindNewAnswer:
		// The server broadcasts answers only into the class room they belong
		// to, so an answer arriving on a class transport is always relevant.
		return c.IsClass()
	case types.KindNewMessage:
		if c.IsClass() {
			return false
		}
		var m types.DirectMessage
		if err := json.Unmarshal(env.Payload(), &m); err != nil {
			return false
		}
		if m.SenderID == c.userID {
			return true
		}
		return m.SenderID == self.ID && m.ReceiverID == c.userID
	}
	return false
}
