package secret

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptySecret    = errors.New("secret is empty")
	ErrInvalidHash    = errors.New("invalid secret hash")
	ErrSecretTooShort = errors.New("secret too short")
	ErrSecretTooLong  = errors.New("secret too long")
	ErrWeakSecret     = errors.New("weak secret")
)
