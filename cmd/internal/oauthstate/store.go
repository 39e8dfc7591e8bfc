package oauthstate

import (
	"context"
	"time"
)

// Record is a persisted state row. Only the key hash is stored.
type Record struct {
	KeyHash         string
	IntegrationType IntegrationType
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Store is the persistence boundary for state tokens.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	// Take deletes the row for keyHash and returns it. ErrInvalidState when
	// no row exists. Two concurrent Takes of the same hash never both succeed.
	Take(ctx context.Context, keyHash string) (Record, error)
	// DeleteExpired removes rows with expires_at < now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
