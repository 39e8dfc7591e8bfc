package feed

import (
	"sync"
)

// Client is one connected feed session.
//
// Send is never closed by the server, so concurrent broadcasts cannot panic;
// done signals the session goroutines to stop.
type Client struct {
	SessionID string
	Send      chan Envelope

	mu     sync.RWMutex
	guilds map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueue
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown (idempotent). It does NOT close Send.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.done) })
}

// SetFilter restricts delivery to guildIDs. Nil or empty clears the filter.
func (c *Client) SetFilter(guildIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(guildIDs) == 0 {
		c.guilds = nil
		return
	}
	c.guilds = make(map[string]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		c.guilds[id] = struct{}{}
	}
}

// Wants reports whether an event for guildID passes the filter.
func (c *Client) Wants(guildID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.guilds == nil {
		return true
	}
	_, ok := c.guilds[guildID]
	return ok
}
