package gateapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"guildgate/cmd/internal/discord"
	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/guild"
	"guildgate/cmd/internal/oauthstate"
)

// Error page reason codes.
const (
	reasonBlacklisted    = "blacklisted"
	reasonNotWhitelisted = "not_whitelisted"
)

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	h.redirectToConsent(w, r, oauthstate.GuildInstall)
}

func (h *Handler) handleInviteUser(w http.ResponseWriter, r *http.Request) {
	h.redirectToConsent(w, r, oauthstate.UserInstall)
}

func (h *Handler) redirectToConsent(w http.ResponseWriter, r *http.Request, it oauthstate.IntegrationType) {
	key, _, err := h.states.Issue(r.Context(), h.now(), it)
	if err != nil {
		h.internalError(w, "invite.state.issue.fail", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.oauth.AuthorizeURL(key, int(it)), http.StatusFound)
}

// handleCallback finishes the OAuth flow. The state token is consumed before
// anything else so a replayed callback finds nothing to redeem.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		writeError(w, http.StatusUnauthorized, "No code granted...")
		return
	}

	tok, err := h.states.Consume(ctx, h.now(), q.Get("state"))
	switch {
	case errors.Is(err, oauthstate.ErrInvalidState), errors.Is(err, oauthstate.ErrInvalidInput):
		h.log.Info("callback.state.invalid", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid or expired state")
		return
	case err != nil:
		h.internalError(w, "callback.state.fail", err)
		return
	}

	if tok.IntegrationType == oauthstate.UserInstall {
		if _, err := h.oauth.Exchange(ctx, code); err != nil {
			h.writeExchangeError(w, err)
			return
		}
		h.log.Info("callback.user_install.ok")
		http.Redirect(w, r, "/success?integration=user", http.StatusFound)
		return
	}

	rawGuild := q.Get("guild_id")
	if rawGuild == "" {
		writeError(w, http.StatusBadRequest, "Missing guild_id parameter")
		return
	}
	gid, err := discordid.Parse("guild_id", rawGuild)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	verdict, err := h.engine.Evaluate(ctx, gid)
	if err != nil {
		h.internalError(w, "callback.evaluate.fail", err)
		return
	}

	switch verdict.Decision {
	case guild.DecisionBlacklisted:
		h.log.Info("callback.refused", "guild_id", gid.String(), "decision", verdict.Decision.String())
		redirectError(w, r, gid, reasonBlacklisted)
		return
	case guild.DecisionNotWhitelisted:
		h.log.Info("callback.refused", "guild_id", gid.String(), "decision", verdict.Decision.String())
		redirectError(w, r, gid, reasonNotWhitelisted)
		return
	case guild.DecisionAlreadyInvited:
		redirectDuplicate(w, r, gid)
		return
	}

	res, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.writeExchangeError(w, err)
		return
	}

	var info guild.InviteResult
	if res.Guild != nil {
		info = guild.InviteResult{GuildName: res.Guild.Name, GuildIcon: res.Guild.Icon}
		if res.Guild.ID != "" && res.Guild.ID != gid.String() {
			h.log.Warn("callback.guild_mismatch", "guild_id", gid.String(), "exchanged_guild_id", res.Guild.ID)
		}
	}

	err = h.engine.FinalizeInvite(ctx, h.now(), gid, info)
	switch {
	case errors.Is(err, guild.ErrAlreadyInvited):
		redirectDuplicate(w, r, gid)
		return
	case errors.Is(err, guild.ErrNotFound):
		redirectError(w, r, gid, reasonNotWhitelisted)
		return
	case err != nil:
		h.internalError(w, "callback.finalize.fail", err)
		return
	}

	h.log.Info("callback.invited", "guild_id", gid.String())

	name := info.GuildName
	if name == "" {
		name = gid.String()
	}
	v := url.Values{}
	v.Set("guild_name", name)
	v.Set("guild_id", gid.String())
	if info.GuildIcon != "" {
		v.Set("guild_icon", info.GuildIcon)
	}
	http.Redirect(w, r, "/success?"+v.Encode(), http.StatusFound)
}

func (h *Handler) writeExchangeError(w http.ResponseWriter, err error) {
	var pe *discord.ProviderError
	if errors.As(err, &pe) {
		h.log.Warn("callback.exchange.provider_error", "code", pe.Code, "status", pe.Status)
		desc := pe.Description
		if desc == "" {
			desc = pe.Code
		}
		writeError(w, http.StatusBadRequest, desc)
		return
	}
	h.log.Error("callback.exchange.fail", "err", err)
	writeError(w, http.StatusInternalServerError, "Server failed to connect with discord.com API")
}

func redirectError(w http.ResponseWriter, r *http.Request, gid discordid.ID, reason string) {
	v := url.Values{}
	v.Set("guild_id", gid.String())
	v.Set("reason", reason)
	http.Redirect(w, r, "/error?"+v.Encode(), http.StatusFound)
}

func redirectDuplicate(w http.ResponseWriter, r *http.Request, gid discordid.ID) {
	http.Redirect(w, r, "/duplicate?guild_id="+gid.String(), http.StatusFound)
}
