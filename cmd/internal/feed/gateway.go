package feed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/ids"

	"github.com/coder/websocket"
)

const (
	defaultSendQueue    = 64
	minSendQueue        = 8
	defaultWriteTimeout = 5 * time.Second
	closeGrace          = time.Second
	maxPingFailures     = 3
	maxFrameBytes       = 16 << 10
	maxSubscribeGuilds  = 100

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	rateLimitEvents     = 30
	rateLimitSubscribes = 5
	rateLimitWindow     = 10 * time.Second
)

// Config tunes the gateway. Zero values select defaults.
type Config struct {
	SendQueue         int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RateEvents        int
	// RateSubscribes caps subscribe frames within RateWindow.
	RateSubscribes int
	RateWindow     time.Duration
	// AllowedOrigins is consulted only when a request carries an Origin
	// header. Non-browser clients send none.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	if c.SendQueue < minSendQueue {
		c.SendQueue = minSendQueue
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateSubscribes <= 0 {
		c.RateSubscribes = rateLimitSubscribes
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// Gateway upgrades admin requests to feed sessions. Authentication is the
// caller's job: mount it behind the admin middleware.
type Gateway struct {
	log            *slog.Logger
	hub            *Hub
	cfg            Config
	originPatterns []string
}

// NewGateway constructs a Gateway.
func NewGateway(log *slog.Logger, hub *Hub, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// Hub returns the gateway's hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// ServeHTTP runs one feed session.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("feed.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("feed.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(newSessionID(), g.cfg.SendQueue)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(client.SessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	hello, _ := json.Marshal(HelloPayload{SessionID: client.SessionID})
	client.Send <- newEnvelope(TypeHello, hello)
	g.hub.Join(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("feed.write.fail", "session_id", client.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("feed.ping.fail", "session_id", client.SessionID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	budget := newFrameBudget(g.cfg.RateEvents, g.cfg.RateSubscribes, g.cfg.RateWindow)

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				g.log.Info("feed.read.fail", "session_id", client.SessionID, "err", err)
			}
			shutdown(websocket.StatusNormalClosure, "peer closed")
			break
		}
		now := time.Now()
		if !budget.Frame(now) {
			g.trySendError(ctx, client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}
		if mt != websocket.MessageText {
			g.trySendError(ctx, client, "bad_frame", "text frames only")
			continue
		}
		if err := g.onFrame(client, data, budget, now); err != nil {
			code := "bad_request"
			if errors.Is(err, errSubscribeRate) {
				code = "rate_limited"
			}
			g.trySendError(ctx, client, code, err.Error())
		}
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *Gateway) onFrame(client *Client, data []byte, budget *frameBudget, now time.Time) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.New("invalid JSON")
	}
	if env.V != Version {
		return fmt.Errorf("unsupported version %d", env.V)
	}

	switch env.Type {
	case TypeSubscribe:
		if !budget.Subscribe(now) {
			return errSubscribeRate
		}
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return errors.New("invalid subscribe payload")
		}
		if len(p.GuildIDs) > maxSubscribeGuilds {
			return fmt.Errorf("too many guild_ids: max=%d", maxSubscribeGuilds)
		}
		out := make([]string, 0, len(p.GuildIDs))
		for _, raw := range p.GuildIDs {
			id, err := discordid.Parse("guild_ids", raw)
			if err != nil {
				return err
			}
			out = append(out, id.String())
		}
		client.SetFilter(out)
		g.log.Info("feed.subscribe", "session_id", client.SessionID, "guilds", len(out))
		return nil
	default:
		return fmt.Errorf("unsupported type: %s", env.Type)
	}
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	select {
	case <-ctx.Done():
	case <-client.Done():
	case client.Send <- newEnvelope(TypeError, p):
	default:
	}
}

func newEnvelope(typ string, payload json.RawMessage) Envelope {
	now := time.Now().UTC()
	return Envelope{V: Version, Type: typ, ID: ids.MustULID(now), TS: now, Payload: payload}
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func newSessionID() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return ids.MustULID(time.Now())
	}
	return hex.EncodeToString(b)
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHost(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(s)
}

// originPatterns derives websocket.Accept host patterns from the allowlist so
// both checks agree.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHost(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
