package discordid

import (
	"errors"
	"fmt"
)

// ErrInvalid is the sentinel wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid discord id")

// ValidationError names the field that failed snowflake validation.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return ErrInvalid.Error()
	}
	return fmt.Sprintf("%v: %s", ErrInvalid, e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }
