package router

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded: maximum 100 messages per minute")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrPersistFailed     = errors.New("failed to persist message")
)
