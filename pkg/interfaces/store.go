package interfaces

import (
	"context"

	"classboard/pkg/types"
)

// MessageStore is the persistence contract the realtime layer depends on.
// The sqlite implementation lives in internal/database; tests substitute
// in-memory fakes.
type MessageStore interface {
	CreateQuestion(ctx context.Context, q *types.Question) error
	CreateAnswer(ctx context.Context, a *types.Answer) error
	CreateMessage(ctx context.Context, m *types.DirectMessage) error

	QuestionsByClass(ctx context.Context, classID int64) ([]*types.Question, error)
	QuestionByID(ctx context.Context, id int64) (*types.Question, error)
	MessagesBetween(ctx context.Context, userA, userB int64) ([]*types.DirectMessage, error)
	Conversations(ctx context.Context, userID int64) ([]*types.User, error)

	UserByID(ctx context.Context, id int64) (*types.User, error)
	Classes(ctx context.Context) ([]*types.Class, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// RosterManager validates class membership before a Q&A transport is joined.
type RosterManager interface {
	ValidateMembership(ctx context.Context, classID, userID int64) error
	ClassExists(ctx context.Context, classID int64) bool
}
