package client

import (
	"encoding/json"
	"testing"

	"classboard/pkg/types"
)

func TestChannelIdentity(t *testing.T) {
	class := ClassChannel(42)
	direct := DirectChannel(7)

	if !class.IsClass() {
		t.Error("class channel should report IsClass")
	}
	if direct.IsClass() {
		t.Error("direct channel should not report IsClass")
	}
	if class.IsZero() || direct.IsZero() {
		t.Error("addressed channels are not zero")
	}
	if !(Channel{}).IsZero() {
		t.Error("zero channel should report IsZero")
	}
	if !class.Equal(ClassChannel(42)) {
		t.Error("channels for the same class must be equal")
	}
	if class.Equal(ClassChannel(43)) || class.Equal(direct) {
		t.Error("different channels must not be equal")
	}
}

func TestChannelRoutingKey(t *testing.T) {
	if got := ClassChannel(42).RoutingKey(); got != "class/42" {
		t.Errorf("unexpected routing key %q", got)
	}
	if got := DirectChannel(7).RoutingKey(); got != "direct/7" {
		t.Errorf("unexpected routing key %q", got)
	}
}

func TestChannelAddress(t *testing.T) {
	self := types.User{ID: 9}

	tests := []struct {
		name    string
		channel Channel
		base    string
		want    string
	}{
		{"class http", ClassChannel(42), "http://localhost:8080", "ws://localhost:8080/api/v1/qa/ws/42?user_id=9"},
		{"class https", ClassChannel(42), "https://example.com", "wss://example.com/api/v1/qa/ws/42?user_id=9"},
		{"direct uses self id", DirectChannel(7), "http://localhost:8080", "ws://localhost:8080/api/v1/chat/ws/9"},
		{"trailing slash trimmed", ClassChannel(1), "http://localhost:8080/", "ws://localhost:8080/api/v1/qa/ws/1?user_id=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.channel.Address(tt.base, self)
			if err != nil {
				t.Fatalf("Address failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := (Channel{}).Address("http://localhost", self); err != ErrNoChannel {
		t.Errorf("expected ErrNoChannel for zero channel, got %v", err)
	}
	if _, err := ClassChannel(1).Address("ftp://host", self); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func mustFrame(t *testing.T, kind string, payload interface{}, chat bool) *types.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := &types.Envelope{Kind: kind}
	if chat {
		env.Message = raw
	} else {
		env.Data = raw
	}
	return env
}

func TestBelongsQuestionMatchesClass(t *testing.T) {
	self := types.User{ID: 9}
	ch := ClassChannel(42)

	match := mustFrame(t, types.KindNewQuestion, &types.Question{ID: 1, ClassID: 42}, false)
	other := mustFrame(t, types.KindNewQuestion, &types.Question{ID: 2, ClassID: 43}, false)

	if !ch.Belongs(match, self) {
		t.Error("question for the joined class must belong")
	}
	if ch.Belongs(other, self) {
		t.Error("question for another class must not belong")
	}
	if DirectChannel(7).Belongs(match, self) {
		t.Error("question frames never belong to a direct channel")
	}
}

func TestBelongsMessageFiltersByCounterpart(t *testing.T) {
	self := types.User{ID: 9}
	ch := DirectChannel(42)

	fromCounterpart := mustFrame(t, types.KindNewMessage, &types.DirectMessage{SenderID: 42, ReceiverID: 9}, true)
	ownEcho := mustFrame(t, types.KindNewMessage, &types.DirectMessage{SenderID: 9, ReceiverID: 42}, true)
	unrelated := mustFrame(t, types.KindNewMessage, &types.DirectMessage{SenderID: 7, ReceiverID: 99}, true)

	if !ch.Belongs(fromCounterpart, self) {
		t.Error("counterpart's message must belong")
	}
	if !ch.Belongs(ownEcho, self) {
		t.Error("own message echoed by the server must belong")
	}
	if ch.Belongs(unrelated, self) {
		t.Error("message between other users must not belong")
	}
}

func TestBelongsAnswerOnClassChannel(t *testing.T) {
	self := types.User{ID: 9}
	answer := mustFrame(t, types.KindNewAnswer, &types.Answer{ID: 1, QuestionID: 5}, false)

	if !ClassChannel(42).Belongs(answer, self) {
		t.Error("answers arriving on a class transport belong to it")
	}
	if DirectChannel(7).Belongs(answer, self) {
		t.Error("answers never belong to a direct channel")
	}
}

func TestBelongsUnknownKind(t *testing.T) {
	self := types.User{ID: 9}
	env := &types.Envelope{Kind: "typing", Data: json.RawMessage(`{}`)}
	if ClassChannel(42).Belongs(env, self) {
		t.Error("unknown kinds never belong")
	}
}
