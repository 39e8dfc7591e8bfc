// Package feed streams committed moderation events to admin subscribers over
// WebSocket.
package feed

import (
	"encoding/json"
	"time"
)

// Subprotocol is required on every feed connection.
const Subprotocol = "guildgate.moderation.v1"

// Version is the envelope schema version.
const Version = 1

// Frame types.
const (
	TypeHello     = "feed.hello"
	TypeSubscribe = "feed.subscribe"
	TypeError     = "feed.error"
)

// Envelope is the only frame shape on the wire. Moderation events use the
// audit action as Type (for example "guild.banned").
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPayload is the body of a moderation event.
type EventPayload struct {
	GuildID string         `json:"guild_id"`
	UserID  string         `json:"user_id,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// HelloPayload is sent once after the upgrade.
type HelloPayload struct {
	SessionID string `json:"session_id"`
}

// SubscribePayload narrows a session to a set of guilds. An empty list
// restores the unfiltered stream.
type SubscribePayload struct {
	GuildIDs []string `json:"guild_ids"`
}

// ErrorPayload reports a rejected client frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
