package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"guildgate/cmd/internal/guild"
	"guildgate/cmd/internal/ids"
)

// Metrics receives feed gauges and counters.
type Metrics interface {
	FeedClientsDelta(delta int)
	FeedDropped()
}

type nopMetrics struct{}

func (nopMetrics) FeedClientsDelta(int) {}
func (nopMetrics) FeedDropped()         {}

// Hub fans events out to connected clients. Broadcast never blocks: a full
// client queue drops the event for that client only.
type Hub struct {
	log     *slog.Logger
	metrics Metrics

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger, m Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Hub{log: log, metrics: m, clients: make(map[string]*Client)}
}

// Join registers a client.
func (h *Hub) Join(c *Client) {
	if h == nil || c == nil || c.SessionID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.SessionID] = c
	h.mu.Unlock()

	h.metrics.FeedClientsDelta(1)
	h.log.Info("feed.client.join", "session_id", c.SessionID)
}

// Leave removes a client and then signals its shutdown.
func (h *Hub) Leave(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.Close()
	h.metrics.FeedClientsDelta(-1)
	h.log.Info("feed.client.leave", "session_id", sessionID)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers env to every client whose filter accepts guildID.
func (h *Hub) Broadcast(guildID string, env Envelope) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}
		if !c.Wants(guildID) {
			continue
		}
		select {
		case c.Send <- env:
		default:
			h.metrics.FeedDropped()
			h.log.Debug("feed.drop", "session_id", c.SessionID, "type", env.Type)
		}
	}
}

// GuildEvent publishes a committed ledger event.
func (h *Hub) GuildEvent(_ context.Context, ev guild.Event) {
	if h == nil {
		return
	}
	p := EventPayload{GuildID: ev.GuildID.String(), Meta: ev.Meta}
	if !ev.UserID.IsZero() {
		p.UserID = ev.UserID.String()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		h.log.Error("feed.encode.fail", "err", err, "type", ev.Action)
		return
	}

	id := ev.ID
	if id == "" {
		id = ids.MustULID(ev.At)
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	h.Broadcast(p.GuildID, Envelope{V: Version, Type: ev.Action, ID: id, TS: at, Payload: payload})
}
