package gateapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/guild"
)

// maxBanSeconds keeps expires within time.Duration range.
const maxBanSeconds = 100 * 365 * 24 * 60 * 60

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}

	st, err := h.ledger.Status(r.Context(), gid)
	if err != nil {
		h.internalError(w, "admin.status.fail", err)
		return
	}

	resp := statusResponse{
		envelope:         newEnvelope(http.StatusOK, "Guild status", "Current standing of the guild"),
		GuildID:          gid,
		GuildCreatedAt:   gid.CreatedAt(),
		Whitelisted:      st.Whitelisted(),
		Invited:          st.Invited(),
		Blacklisted:      st.Blacklisted(),
		BlacklistExpired: st.BlacklistExpired(h.now()),
	}
	if st.Whitelist != nil {
		v := toWhitelistView(*st.Whitelist)
		resp.Whitelist = &v
	}
	if st.Blacklist != nil {
		v := toBlacklistView(*st.Blacklist)
		resp.Blacklist = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := h.decode(w, r, gid, &req, &req.GuildID); err != nil {
		writeRequestError(w, err)
		return
	}
	if req.UserID == nil {
		writeRequestError(w, missing("user_id"))
		return
	}

	res, err := h.ledger.Grant(r.Context(), h.now(), gid, *req.UserID)
	if err != nil {
		h.writeLedgerError(w, "admin.grant.fail", err)
		return
	}

	desc := "GuildID has been granted invite access"
	if res.Regranted {
		desc = "GuildID has been granted invite access, again."
	}
	h.log.Info("admin.grant", "guild_id", gid.String(), "user_id", req.UserID.String(), "regranted", res.Regranted)
	writeJSON(w, http.StatusOK, grantResponse{
		envelope:  newEnvelope(http.StatusOK, "Successfully granted", desc),
		Whitelist: toWhitelistView(res.Entry),
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := h.decode(w, r, gid, &req, &req.GuildID); err != nil {
		writeRequestError(w, err)
		return
	}
	if req.UserID == nil {
		writeRequestError(w, missing("user_id"))
		return
	}

	_, err := h.ledger.Revoke(r.Context(), h.now(), gid, *req.UserID)
	switch {
	case errors.Is(err, guild.ErrNotFound):
		writeEnvelope(w, http.StatusOK, "Task refused", "GuildID is not even listed inside the API...")
		return
	case err != nil:
		h.writeLedgerError(w, "admin.revoke.fail", err)
		return
	}

	h.log.Info("admin.revoke", "guild_id", gid.String(), "user_id", req.UserID.String())
	writeEnvelope(w, http.StatusOK, "Successfully revoked", "GuildID has been revoked invite access")
}

func (h *Handler) handleBan(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := h.decode(w, r, gid, &req, &req.GuildID); err != nil {
		writeRequestError(w, err)
		return
	}
	switch {
	case req.UserID == nil:
		writeRequestError(w, missing("user_id"))
		return
	case req.Reason == nil:
		writeRequestError(w, missing("reason"))
		return
	}

	var ttl time.Duration
	if req.Expires != nil {
		if *req.Expires <= 0 || *req.Expires > maxBanSeconds {
			writeError(w, http.StatusBadRequest, "expires must be a positive number of seconds")
			return
		}
		ttl = time.Duration(*req.Expires) * time.Second
	}

	entry, err := h.ledger.Ban(r.Context(), guild.BanInput{
		GuildID: gid,
		UserID:  *req.UserID,
		Reason:  *req.Reason,
		TTL:     ttl,
		Now:     h.now(),
	})
	switch {
	case errors.Is(err, guild.ErrAlreadyBlacklisted):
		writeEnvelope(w, http.StatusOK, "Task refused", "GuildID is already banned")
		return
	case err != nil:
		h.writeLedgerError(w, "admin.ban.fail", err)
		return
	}

	h.log.Info("admin.ban", "guild_id", gid.String(), "user_id", req.UserID.String(), "permanent", entry.ExpiresAt == nil)
	writeJSON(w, http.StatusOK, banResponse{
		envelope:  newEnvelope(http.StatusOK, "Successfully banned", "GuildID has been banned from the API"),
		Blacklist: toBlacklistView(entry),
	})
}

func (h *Handler) handleUnban(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	actor, err := h.optionalActor(w, r, gid)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	_, err = h.ledger.Unban(r.Context(), h.now(), gid, actor)
	switch {
	case errors.Is(err, guild.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, "Not found", "GuildID is not even banned...")
		return
	case err != nil:
		h.writeLedgerError(w, "admin.unban.fail", err)
		return
	}

	h.log.Info("admin.unban", "guild_id", gid.String(), "user_id", actor.String())
	writeEnvelope(w, http.StatusOK, "Successfully unbanned", "GuildID has been unbanned from the API")
}

func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	notes, err := h.ledger.ListNotes(r.Context(), gid)
	if err != nil {
		h.internalError(w, "admin.notes.list.fail", err)
		return
	}

	out := make([]noteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteView(n))
	}
	writeJSON(w, http.StatusOK, notesResponse{
		envelope: newEnvelope(http.StatusOK, "Notes", "Notes of the guild, newest first"),
		Notes:    out,
	})
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := h.decode(w, r, gid, &req, &req.GuildID); err != nil {
		writeRequestError(w, err)
		return
	}
	switch {
	case req.UserID == nil:
		writeRequestError(w, missing("user_id"))
		return
	case req.Content == nil || strings.TrimSpace(*req.Content) == "":
		writeRequestError(w, missing("content"))
		return
	}

	note, err := h.ledger.AddNote(r.Context(), h.now(), gid, *req.UserID, *req.Content)
	if err != nil {
		h.writeLedgerError(w, "admin.notes.add.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse{
		envelope: newEnvelope(http.StatusCreated, "Note added", "Note has been added to the guild"),
		Note:     toNoteView(note),
	})
}

func (h *Handler) handleDeleteNotes(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	actor, err := h.optionalActor(w, r, gid)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	n, err := h.ledger.DeleteNotes(r.Context(), h.now(), gid, actor)
	if err != nil {
		h.writeLedgerError(w, "admin.notes.delete.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{
		envelope: newEnvelope(http.StatusOK, "Notes deleted", "All notes of the guild have been deleted"),
		Deleted:  n,
	})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathGuildID(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.Audit(r.Context(), gid)
	if err != nil {
		h.internalError(w, "admin.audit.fail", err)
		return
	}

	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditView(e))
	}
	writeJSON(w, http.StatusOK, auditResponse{
		envelope: newEnvelope(http.StatusOK, "Audit trail", "Ledger changes of the guild, newest first"),
		Entries:  out,
	})
}

// ---- helpers ----

func pathGuildID(w http.ResponseWriter, r *http.Request) (discordid.ID, bool) {
	gid, err := discordid.Parse("guild_id", r.PathValue("guild_id"))
	if err != nil {
		writeRequestError(w, err)
		return 0, false
	}
	return gid, true
}

// decode reads the body into dst and checks that an optional body guild_id
// names the same guild as the path.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, gid discordid.ID, dst any, bodyGuild **discordid.ID) error {
	if err := decodeBody(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		return err
	}
	if *bodyGuild != nil && **bodyGuild != gid {
		return errGuildMismatch
	}
	return nil
}

// optionalActor returns the body user_id of routes where the body may be
// omitted. Zero means the actor is unknown.
func (h *Handler) optionalActor(w http.ResponseWriter, r *http.Request, gid discordid.ID) (discordid.ID, error) {
	if !hasBody(r) {
		return 0, nil
	}
	var req actorRequest
	if err := h.decode(w, r, gid, &req, &req.GuildID); err != nil {
		return 0, err
	}
	if req.UserID == nil {
		return 0, nil
	}
	return *req.UserID, nil
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, event string, err error) {
	var be *guild.BlacklistedError
	switch {
	case errors.As(err, &be):
		writeJSON(w, http.StatusForbidden, bannedResponse{
			envelope: newEnvelope(http.StatusForbidden, "Guild is banned", "Reason: "+be.Entry.Reason),
			Reason:   be.Entry.Reason,
			BannedBy: be.Entry.UserID,
		})
	case errors.Is(err, guild.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, guild.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, "Not found", "GuildID is not listed inside the API")
	default:
		h.internalError(w, event, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, event string, err error) {
	h.log.Error(event, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
