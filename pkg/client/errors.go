package client

import "errors"

var (
	ErrNoChannel      = errors.New("no channel open")
	ErrNotOpen        = errors.New("transport not open")
	ErrClientClosed   = errors.New("client is closed")
	ErrWrongChannel   = errors.New("operation not valid for this channel kind")
	ErrConfirmTimeout = errors.New("send not confirmed before timeout")
)
