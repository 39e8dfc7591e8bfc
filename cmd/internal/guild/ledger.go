package guild

import (
	"context"
	"errors"
	"strings"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/ids"
)

// Ledger applies moderation operations that change a guild's standing.
//
// Grant, revoke, ban and unban run under WithGuildLock, so the blacklist check
// and the write that depends on it cannot interleave with another operation on
// the same guild.
type Ledger struct {
	store Store
	opts  options
}

// GrantResult describes a successful grant.
type GrantResult struct {
	Entry WhitelistEntry
	// Regranted is true when an existing row was overwritten.
	Regranted bool
}

// BanInput describes a ban. TTL <= 0 means permanent.
type BanInput struct {
	GuildID discordid.ID
	UserID  discordid.ID
	Reason  string
	TTL     time.Duration
	Now     time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Ledger{store: store, opts: o}, nil
}

// Grant whitelists a guild, or re-grants it: user_id is overwritten and
// invited is reset so a fresh invite becomes possible. A blacklisted guild is
// refused with *BlacklistedError.
func (l *Ledger) Grant(ctx context.Context, now time.Time, guildID, userID discordid.ID) (GrantResult, error) {
	if l == nil || l.store == nil || guildID.IsZero() || userID.IsZero() {
		return GrantResult{}, ErrInvalidInput
	}
	now = nowOr(now)

	var (
		res   GrantResult
		audit AuditEntry
	)
	err := l.store.WithGuildLock(ctx, guildID, func(q Queries) error {
		if err := refuseIfBlacklisted(ctx, q, guildID); err != nil {
			return err
		}

		entry, created, err := q.UpsertWhitelist(ctx, WhitelistEntry{
			GuildID:   guildID,
			UserID:    userID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		res = GrantResult{Entry: entry, Regranted: !created}

		audit, err = newAudit(now, guildID, userID, ActionGranted, map[string]any{
			"regranted": !created,
		})
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	return res, l.finish(ctx, "grant", audit, err)
}

// Revoke removes a guild's whitelist row. It returns ErrNotFound when the guild
// is not listed and *BlacklistedError when the guild is banned.
func (l *Ledger) Revoke(ctx context.Context, now time.Time, guildID, userID discordid.ID) (WhitelistEntry, error) {
	if l == nil || l.store == nil || guildID.IsZero() || userID.IsZero() {
		return WhitelistEntry{}, ErrInvalidInput
	}
	now = nowOr(now)

	var (
		prev  WhitelistEntry
		audit AuditEntry
	)
	err := l.store.WithGuildLock(ctx, guildID, func(q Queries) error {
		if err := refuseIfBlacklisted(ctx, q, guildID); err != nil {
			return err
		}

		var err error
		prev, err = q.GetWhitelist(ctx, guildID)
		if err != nil {
			return err
		}
		if _, err := q.DeleteWhitelist(ctx, guildID); err != nil {
			return err
		}

		audit, err = newAudit(now, guildID, userID, ActionRevoked, map[string]any{
			"granted_by": prev.UserID.String(),
			"invited":    prev.Invited,
		})
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	return prev, l.finish(ctx, "revoke", audit, err)
}

// Ban blacklists a guild. The whitelist row is left untouched; admission
// precedence keeps the guild out. ErrAlreadyBlacklisted when a ban exists.
func (l *Ledger) Ban(ctx context.Context, in BanInput) (BlacklistEntry, error) {
	if l == nil || l.store == nil || in.GuildID.IsZero() || in.UserID.IsZero() || in.TTL < 0 {
		return BlacklistEntry{}, ErrInvalidInput
	}
	now := nowOr(in.Now)

	entry := BlacklistEntry{
		GuildID:   in.GuildID,
		UserID:    in.UserID,
		Reason:    strings.TrimSpace(in.Reason),
		CreatedAt: now,
	}
	if in.TTL > 0 {
		exp := now.Add(in.TTL)
		entry.ExpiresAt = &exp
	}

	var audit AuditEntry
	err := l.store.WithGuildLock(ctx, in.GuildID, func(q Queries) error {
		if _, err := q.GetBlacklist(ctx, in.GuildID); err == nil {
			return ErrAlreadyBlacklisted
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := q.InsertBlacklist(ctx, entry); err != nil {
			return err
		}

		meta := map[string]any{"reason": entry.Reason}
		if entry.ExpiresAt != nil {
			meta["expires_at"] = entry.ExpiresAt.UTC().Format(time.RFC3339)
		}
		var err error
		audit, err = newAudit(now, in.GuildID, in.UserID, ActionBanned, meta)
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	if err != nil {
		return BlacklistEntry{}, l.finish(ctx, "ban", audit, err)
	}
	return entry, l.finish(ctx, "ban", audit, nil)
}

// Unban deletes a guild's ban. userID may be zero when the caller is unknown.
func (l *Ledger) Unban(ctx context.Context, now time.Time, guildID, userID discordid.ID) (BlacklistEntry, error) {
	if l == nil || l.store == nil || guildID.IsZero() {
		return BlacklistEntry{}, ErrInvalidInput
	}
	now = nowOr(now)

	var (
		prev  BlacklistEntry
		audit AuditEntry
	)
	err := l.store.WithGuildLock(ctx, guildID, func(q Queries) error {
		var err error
		prev, err = q.GetBlacklist(ctx, guildID)
		if err != nil {
			return err
		}
		if _, err := q.DeleteBlacklist(ctx, guildID); err != nil {
			return err
		}

		audit, err = newAudit(now, guildID, userID, ActionUnbanned, map[string]any{
			"banned_by": prev.UserID.String(),
			"reason":    prev.Reason,
		})
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	return prev, l.finish(ctx, "unban", audit, err)
}

// AddNote appends a note. Content must be non-empty.
func (l *Ledger) AddNote(ctx context.Context, now time.Time, guildID, userID discordid.ID, content string) (NoteEntry, error) {
	if l == nil || l.store == nil || guildID.IsZero() || userID.IsZero() || strings.TrimSpace(content) == "" {
		return NoteEntry{}, ErrInvalidInput
	}
	now = nowOr(now)

	id, err := ids.NewULID(now)
	if err != nil {
		return NoteEntry{}, err
	}
	note := NoteEntry{
		ID:        id,
		GuildID:   guildID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
	}
	if err := l.store.InsertNote(ctx, note); err != nil {
		l.opts.metrics.LedgerOp("add_note", resultLabel(err))
		return NoteEntry{}, err
	}

	l.opts.metrics.LedgerOp("add_note", "ok")
	l.opts.observer.GuildEvent(ctx, Event{
		ID:      note.ID,
		Action:  ActionNoteAdded,
		GuildID: guildID,
		UserID:  userID,
		At:      now,
		Meta:    map[string]any{"content": content},
	})
	return note, nil
}

// DeleteNotes removes every note of a guild and returns how many were deleted.
func (l *Ledger) DeleteNotes(ctx context.Context, now time.Time, guildID, userID discordid.ID) (int64, error) {
	if l == nil || l.store == nil || guildID.IsZero() {
		return 0, ErrInvalidInput
	}
	now = nowOr(now)

	var (
		n     int64
		audit AuditEntry
	)
	err := l.store.WithGuildLock(ctx, guildID, func(q Queries) error {
		var err error
		n, err = q.DeleteNotes(ctx, guildID)
		if err != nil {
			return err
		}
		audit, err = newAudit(now, guildID, userID, ActionNotesDeleted, map[string]any{"deleted": n})
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	return n, l.finish(ctx, "delete_notes", audit, err)
}

// ListNotes returns a guild's notes newest-first.
func (l *Ledger) ListNotes(ctx context.Context, guildID discordid.ID) ([]NoteEntry, error) {
	if l == nil || l.store == nil || guildID.IsZero() {
		return nil, ErrInvalidInput
	}
	return l.store.ListNotes(ctx, guildID)
}

// Status returns the current whitelist and blacklist rows of a guild.
// Both may be absent.
func (l *Ledger) Status(ctx context.Context, guildID discordid.ID) (Status, error) {
	if l == nil || l.store == nil || guildID.IsZero() {
		return Status{}, ErrInvalidInput
	}

	st := Status{GuildID: guildID}

	wl, err := l.store.GetWhitelist(ctx, guildID)
	switch {
	case err == nil:
		st.Whitelist = &wl
	case !errors.Is(err, ErrNotFound):
		return Status{}, err
	}

	ban, err := l.store.GetBlacklist(ctx, guildID)
	switch {
	case err == nil:
		st.Blacklist = &ban
	case !errors.Is(err, ErrNotFound):
		return Status{}, err
	}

	return st, nil
}

// Audit returns the guild's audit trail newest-first.
func (l *Ledger) Audit(ctx context.Context, guildID discordid.ID) ([]AuditEntry, error) {
	if l == nil || l.store == nil || guildID.IsZero() {
		return nil, ErrInvalidInput
	}
	return l.store.ListAudit(ctx, guildID, l.opts.auditLimit)
}

func (l *Ledger) finish(ctx context.Context, op string, audit AuditEntry, err error) error {
	if err != nil {
		l.opts.metrics.LedgerOp(op, resultLabel(err))
		return err
	}
	l.opts.metrics.LedgerOp(op, "ok")
	l.opts.observer.GuildEvent(ctx, audit.event())
	return nil
}

func refuseIfBlacklisted(ctx context.Context, q Queries, guildID discordid.ID) error {
	ban, err := q.GetBlacklist(ctx, guildID)
	switch {
	case err == nil:
		return &BlacklistedError{Entry: ban}
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBlacklisted):
		return "blacklisted"
	case errors.Is(err, ErrAlreadyBlacklisted):
		return "already_blacklisted"
	case errors.Is(err, ErrAlreadyInvited):
		return "already_invited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
