package guild

import (
	"context"
	"time"

	"guildgate/cmd/internal/discordid"
)

// Queries is the row-level persistence surface. Each method is one statement.
type Queries interface {
	GetWhitelist(ctx context.Context, guildID discordid.ID) (WhitelistEntry, error)
	// UpsertWhitelist inserts a row or overwrites user_id and resets invited.
	// created reports whether a new row was inserted.
	UpsertWhitelist(ctx context.Context, in WhitelistEntry) (out WhitelistEntry, created bool, err error)
	DeleteWhitelist(ctx context.Context, guildID discordid.ID) (bool, error)
	// MarkInvited flips invited to true only when it is currently false.
	MarkInvited(ctx context.Context, guildID discordid.ID, now time.Time) (bool, error)

	GetBlacklist(ctx context.Context, guildID discordid.ID) (BlacklistEntry, error)
	// InsertBlacklist returns ErrAlreadyBlacklisted when a row exists.
	InsertBlacklist(ctx context.Context, in BlacklistEntry) error
	DeleteBlacklist(ctx context.Context, guildID discordid.ID) (bool, error)
	DeleteExpiredBlacklist(ctx context.Context, now time.Time) ([]BlacklistEntry, error)

	InsertNote(ctx context.Context, in NoteEntry) error
	// ListNotes returns notes newest-first.
	ListNotes(ctx context.Context, guildID discordid.ID) ([]NoteEntry, error)
	DeleteNotes(ctx context.Context, guildID discordid.ID) (int64, error)

	InsertAudit(ctx context.Context, in AuditEntry) error
	// ListAudit returns audit rows newest-first, at most limit.
	ListAudit(ctx context.Context, guildID discordid.ID, limit int) ([]AuditEntry, error)
}

// Store is the persistence boundary for the ledger.
type Store interface {
	Queries

	// WithGuildLock runs fn against a transaction holding an exclusive lock on
	// guildID. fn's writes commit together or not at all.
	WithGuildLock(ctx context.Context, guildID discordid.ID, fn func(q Queries) error) error

	Close() error
}
