package guild

import (
	"time"

	"guildgate/cmd/internal/discordid"
)

// Audit/feed actions.
const (
	ActionGranted      = "guild.granted"
	ActionRevoked      = "guild.revoked"
	ActionBanned       = "guild.banned"
	ActionUnbanned     = "guild.unbanned"
	ActionInvited      = "guild.invited"
	ActionNoteAdded    = "guild.note_added"
	ActionNotesDeleted = "guild.notes_deleted"
	ActionBanExpired   = "blacklist.expired"
)

// WhitelistEntry is the invite permission of one guild.
type WhitelistEntry struct {
	GuildID   discordid.ID
	UserID    discordid.ID
	Invited   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlacklistEntry is a ban of one guild. ExpiresAt nil means permanent.
type BlacklistEntry struct {
	GuildID   discordid.ID
	UserID    discordid.ID
	Reason    string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Expired reports whether the ban is past its expiry at now.
func (b BlacklistEntry) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// NoteEntry is an append-only moderation annotation.
type NoteEntry struct {
	ID        string
	GuildID   discordid.ID
	UserID    discordid.ID
	Content   string
	CreatedAt time.Time
}

// AuditEntry records one ledger mutation. UserID is zero for system actions
// such as the expiry sweep.
type AuditEntry struct {
	ID        string
	GuildID   discordid.ID
	UserID    discordid.ID
	Action    string
	Meta      map[string]any
	CreatedAt time.Time
}

// Status is a point-in-time snapshot of a guild's standing.
type Status struct {
	GuildID   discordid.ID
	Whitelist *WhitelistEntry
	Blacklist *BlacklistEntry
}

// Whitelisted reports whether a whitelist row exists.
func (s Status) Whitelisted() bool { return s.Whitelist != nil }

// Invited reports whether the bot already completed an invite.
func (s Status) Invited() bool { return s.Whitelist != nil && s.Whitelist.Invited }

// Blacklisted reports whether a blacklist row exists (swept or not).
func (s Status) Blacklisted() bool { return s.Blacklist != nil }

// BlacklistExpired reports a ban that is past expiry but not yet swept.
func (s Status) BlacklistExpired(now time.Time) bool {
	return s.Blacklist != nil && s.Blacklist.Expired(now)
}
