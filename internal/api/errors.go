package api

import "errors"

var (
	ErrMissingIdentity = errors.New("missing X-User-ID header")
	ErrUnknownUser     = errors.New("unknown user")
)
