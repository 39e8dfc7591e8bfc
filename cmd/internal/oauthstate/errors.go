package oauthstate

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState covers unknown, already consumed and expired keys.
	ErrInvalidState = errors.New("invalid or expired state")
)
