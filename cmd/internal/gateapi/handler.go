// Package gateapi is the HTTP surface of the gatekeeper: the browser invite
// flow with its OAuth callback and result pages, and the admin JSON API.
package gateapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"guildgate/cmd/internal/discord"
	"guildgate/cmd/internal/guild"
	"guildgate/cmd/internal/oauthstate"
)

// Exchanger builds consent URLs and redeems authorization codes.
type Exchanger interface {
	AuthorizeURL(state string, integrationType int) string
	Exchange(ctx context.Context, code string) (discord.ExchangeResult, error)
}

// Authenticator checks the admin shared secret.
type Authenticator interface {
	Verify(presented string) bool
}

// Deps are the collaborators a Handler dispatches to. All are required.
type Deps struct {
	Engine *guild.Engine
	Ledger *guild.Ledger
	States *oauthstate.Manager
	OAuth  Exchanger
	Admin  Authenticator
}

// Handler serves the invite flow and the admin API.
type Handler struct {
	log *slog.Logger
	cfg Config

	engine *guild.Engine
	ledger *guild.Ledger
	states *oauthstate.Manager
	oauth  Exchanger
	admin  Authenticator

	failures *failLimiter
	pages    *pages
	now      func() time.Time

	mux *http.ServeMux
}

// Option configures optional Handler behaviour.
type Option func(*Handler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps, opts ...Option) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Engine == nil || deps.Ledger == nil || deps.States == nil || deps.OAuth == nil || deps.Admin == nil {
		return nil, errors.New("gateapi: missing dependency")
	}
	cfg = cfg.withDefaults()

	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		engine:   deps.Engine,
		ledger:   deps.Ledger,
		states:   deps.States,
		oauth:    deps.OAuth,
		admin:    deps.Admin,
		failures: newFailLimiter(cfg.AuthFailMax, cfg.AuthFailWindow),
		pages:    p,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires every route onto mux, including the 404/405 fallback.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	h.mux = mux

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /invite", h.handleInvite)
	mux.HandleFunc("GET /invite/user", h.handleInviteUser)
	mux.HandleFunc("GET /callback", h.handleCallback)
	mux.HandleFunc("GET /success", h.handleSuccess)
	mux.HandleFunc("GET /error", h.handleErrorPage)
	mux.HandleFunc("GET /duplicate", h.handleDuplicate)

	admin := func(fn http.HandlerFunc) http.Handler { return h.RequireAdmin(fn) }
	mux.Handle("GET /api/guilds/{guild_id}", admin(h.handleStatus))
	mux.Handle("POST /api/guilds/{guild_id}", admin(h.handleGrant))
	mux.Handle("DELETE /api/guilds/{guild_id}", admin(h.handleRevoke))
	mux.Handle("PUT /api/guilds/{guild_id}/ban", admin(h.handleBan))
	mux.Handle("DELETE /api/guilds/{guild_id}/ban", admin(h.handleUnban))
	mux.Handle("GET /api/guilds/{guild_id}/notes", admin(h.handleListNotes))
	mux.Handle("POST /api/guilds/{guild_id}/notes", admin(h.handleAddNote))
	mux.Handle("DELETE /api/guilds/{guild_id}/notes", admin(h.handleDeleteNotes))
	mux.Handle("GET /api/guilds/{guild_id}/audit", admin(h.handleAudit))

	mux.HandleFunc("/", h.handleFallback)
}

// RequireAdmin guards next with the shared-secret check. Requests that
// announce a body must declare application/json. Failed attempts are counted
// per client IP and answered with 429 once over the limit.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := h.now()
		key := ""
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			key = ip.String()
		}

		if blocked, retry := h.failures.Blocked(key, now); blocked {
			h.log.Warn("admin.auth.rate_limited", "remote", key, "retry_after_s", int64(retry.Seconds()))
			writeRateLimited(w, retry)
			return
		}

		if needsJSON(r) && !isJSONContentType(r.Header.Get("Content-Type")) {
			writeError(w, http.StatusBadRequest, "Invalid Content-Type. Must be application/json")
			return
		}

		presented := strings.TrimSpace(r.Header.Get("Authorization"))
		if presented == "" {
			writeError(w, http.StatusBadRequest, "Missing Authorization")
			return
		}
		if !h.admin.Verify(presented) {
			h.failures.Fail(key, now)
			h.log.Warn("admin.auth.fail", "remote", key, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "Access denied...")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func needsJSON(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	case http.MethodDelete:
		return hasBody(r)
	default:
		return false
	}
}

var routedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// handleFallback answers unmatched requests with an envelope: 405 when the
// path exists under another method, 404 otherwise.
func (h *Handler) handleFallback(w http.ResponseWriter, r *http.Request) {
	if h.mux != nil {
		var allowed []string
		for _, m := range routedMethods {
			if m == r.Method {
				continue
			}
			alt := r.Clone(r.Context())
			alt.Method = m
			if _, pattern := h.mux.Handler(alt); pattern != "" && pattern != "/" {
				allowed = append(allowed, m)
			}
		}
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
	}
	writeError(w, http.StatusNotFound, "The requested URL was not found on the server.")
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
