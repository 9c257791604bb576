package types

import (
	"encoding/json"
	"time"
)

// Envelope kinds carried on the wire. The client ignores anything else so
// newer servers can add kinds without breaking older clients.
const (
	KindNewQuestion = "new_question"
	KindNewAnswer   = "new_answer"
	KindNewMessage  = "new_message"
)

// User roles.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// User identifies an account. Only the fields the realtime layer needs are
// carried; profile data lives behind the user service.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// Class is a taught class; its Q&A board is one shared channel for the
// teacher and every enrolled student.
type Class struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	TeacherID  int64   `json:"teacher_id"`
	StudentIDs []int64 `json:"student_ids,omitempty"`
}

// Question is one entry on a class Q&A board.
type Question struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	ClassID   int64     `json:"class_id"`
	StudentID int64     `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
	Student   *User     `json:"student,omitempty"`
	Answers   []Answer  `json:"answers"`
}

// Answer replies to a question. Only teachers may author answers.
type Answer struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	QuestionID int64     `json:"question_id"`
	TeacherID  int64     `json:"teacher_id"`
	Timestamp  time.Time `json:"timestamp"`
	Teacher    *User     `json:"teacher,omitempty"`
}

// DirectMessage is one message in a pairwise conversation.
type DirectMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
}

// Envelope is the unit crossing a transport. Q&A pushes carry the record in
// "data"; chat pushes carry it in "message". Both spellings are preserved
// for wire compatibility with existing frontends.
type Envelope struct {
	Kind    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Payload returns whichever payload field the frame uses.
func (e *Envelope) Payload() json.RawMessage {
	if len(e.Data) > 0 {
		return e.Data
	}
	return e.Message
}

// ChatSend is the outbound frame a client writes on a chat transport.
type ChatSend struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// QuestionEnvelope builds a new_question push frame.
func QuestionEnvelope(q *Question) (*Envelope, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return &Envelope{Kind: KindNewQuestion, Data: data}, nil
}

// AnswerEnvelope builds a new_answer push frame.
func AnswerEnvelope(a *Answer) (*Envelope, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &Envelope{Kind: KindNewAnswer, Data: data}, nil
}

// MessageEnvelope builds a new_message push frame.
func MessageEnvelope(m *DirectMessage) (*Envelope, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &Envelope{Kind: KindNewMessage, Message: data}, nil
}

// IsValidKind reports whether the kind is one this version understands.
func IsValidKind(kind string) bool {
	switch kind {
	case KindNewQuestion, KindNewAnswer, KindNewMessage:
		return true
	}
	return false
}

// IsValidRole reports whether the role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}
