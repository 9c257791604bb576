package interfaces

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrClassNotFound = errors.New("class not found")
	ErrNotEnrolled   = errors.New("user not enrolled in class")
)
