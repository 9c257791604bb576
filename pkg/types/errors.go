package types

import "errors"

var (
	ErrNilRecord         = errors.New("record cannot be nil")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrContentTooLarge   = errors.New("content exceeds 64KB limit")
	ErrInvalidUserID     = errors.New("user ID must be positive")
	ErrInvalidClassID    = errors.New("class ID must be positive")
	ErrInvalidQuestionID = errors.New("question ID must be positive")
	ErrSelfMessage       = errors.New("sender and receiver must differ")
	ErrInvalidRole       = errors.New("role must be student, teacher or admin")
)
