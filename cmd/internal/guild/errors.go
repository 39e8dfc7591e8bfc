package guild

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrBlacklisted        = errors.New("guild is blacklisted")
	ErrAlreadyBlacklisted = errors.New("guild is already blacklisted")
	ErrAlreadyInvited     = errors.New("guild already invited")
)

// BlacklistedError carries the ban that refused an operation.
type BlacklistedError struct {
	Entry BlacklistEntry
}

func (e *BlacklistedError) Error() string {
	return fmt.Sprintf("%v: banned by %s: %s", ErrBlacklisted, e.Entry.UserID, e.Entry.Reason)
}

func (e *BlacklistedError) Unwrap() error { return ErrBlacklisted }
