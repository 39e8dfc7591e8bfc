package gateapi

import (
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/guild"
)

// ---- requests ----

type grantRequest struct {
	GuildID *discordid.ID `json:"guild_id,omitempty"`
	UserID  *discordid.ID `json:"user_id"`
}

type banRequest struct {
	GuildID *discordid.ID `json:"guild_id,omitempty"`
	UserID  *discordid.ID `json:"user_id"`
	Reason  *string       `json:"reason"`
	Expires *int64        `json:"expires,omitempty"`
}

type noteRequest struct {
	GuildID *discordid.ID `json:"guild_id,omitempty"`
	UserID  *discordid.ID `json:"user_id"`
	Content *string       `json:"content"`
}

// actorRequest is the optional body of unban and delete-notes.
type actorRequest struct {
	GuildID *discordid.ID `json:"guild_id,omitempty"`
	UserID  *discordid.ID `json:"user_id,omitempty"`
}

// ---- responses ----

type whitelistView struct {
	GuildID   discordid.ID `json:"guild_id"`
	UserID    discordid.ID `json:"user_id"`
	Invited   bool         `json:"invited"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type blacklistView struct {
	GuildID   discordid.ID `json:"guild_id"`
	UserID    discordid.ID `json:"user_id"`
	Reason    string       `json:"reason"`
	ExpiresAt *time.Time   `json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
}

type noteView struct {
	ID        string       `json:"id"`
	GuildID   discordid.ID `json:"guild_id"`
	UserID    discordid.ID `json:"user_id"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

type auditView struct {
	ID        string         `json:"id"`
	GuildID   discordid.ID   `json:"guild_id"`
	UserID    *discordid.ID  `json:"user_id"`
	Action    string         `json:"action"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type statusResponse struct {
	envelope
	GuildID          discordid.ID   `json:"guild_id"`
	GuildCreatedAt   time.Time      `json:"guild_created_at"`
	Whitelisted      bool           `json:"whitelisted"`
	Invited          bool           `json:"invited"`
	Blacklisted      bool           `json:"blacklisted"`
	BlacklistExpired bool           `json:"blacklist_expired"`
	Whitelist        *whitelistView `json:"whitelist"`
	Blacklist        *blacklistView `json:"blacklist"`
}

type grantResponse struct {
	envelope
	Whitelist whitelistView `json:"whitelist"`
}

type banResponse struct {
	envelope
	Blacklist blacklistView `json:"blacklist"`
}

// bannedResponse refuses a grant or revoke on a blacklisted guild.
type bannedResponse struct {
	envelope
	Reason   string       `json:"reason"`
	BannedBy discordid.ID `json:"banned_by"`
}

type noteResponse struct {
	envelope
	Note noteView `json:"note"`
}

type notesResponse struct {
	envelope
	Notes []noteView `json:"notes"`
}

type deletedResponse struct {
	envelope
	Deleted int64 `json:"deleted"`
}

type auditResponse struct {
	envelope
	Entries []auditView `json:"entries"`
}

func toWhitelistView(e guild.WhitelistEntry) whitelistView {
	return whitelistView{
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		Invited:   e.Invited,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toBlacklistView(e guild.BlacklistEntry) blacklistView {
	return blacklistView{
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		Reason:    e.Reason,
		ExpiresAt: e.ExpiresAt,
		CreatedAt: e.CreatedAt,
	}
}

func toNoteView(n guild.NoteEntry) noteView {
	return noteView{
		ID:        n.ID,
		GuildID:   n.GuildID,
		UserID:    n.UserID,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
	}
}

func toAuditView(a guild.AuditEntry) auditView {
	v := auditView{
		ID:        a.ID,
		GuildID:   a.GuildID,
		Action:    a.Action,
		Meta:      a.Meta,
		CreatedAt: a.CreatedAt,
	}
	if !a.UserID.IsZero() {
		uid := a.UserID
		v.UserID = &uid
	}
	return v
}
