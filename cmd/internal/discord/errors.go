package discord

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid discord config")
	ErrMissingCode   = errors.New("missing authorization code")
)

// UpstreamError reports a transport failure or an unreadable provider response.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("discord %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ProviderError is an error payload returned by Discord itself.
type ProviderError struct {
	Code        string
	Description string
	Status      int
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Description == "" {
		return "discord: " + e.Code
	}
	return fmt.Sprintf("discord: %s: %s", e.Code, e.Description)
}
