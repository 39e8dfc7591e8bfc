package gateapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"guildgate/cmd/internal/discordid"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	tmpl *template.Template
}

func loadPages() (*pages, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &pages{tmpl: t}, nil
}

type pageData struct {
	SupportServer string
	BotWebsite    string

	GuildID   string
	GuildName string
	GuildIcon string
	IconType  string

	Reason         string
	UserInstall    bool
	InviteURL      string
	UserInstallURL string
}

func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	data.SupportServer = h.cfg.SupportServer
	data.BotWebsite = h.cfg.BotWebsite

	var buf bytes.Buffer
	if err := h.pages.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.internalError(w, "page.render.fail", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	h.render(w, "index.html", pageData{InviteURL: "/invite", UserInstallURL: "/invite/user"})
}

func (h *Handler) handleSuccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("integration") == "user" {
		h.render(w, "success.html", pageData{UserInstall: true})
		return
	}

	name := strings.TrimSpace(q.Get("guild_name"))
	gid, ok := queryGuildID(w, r)
	if !ok {
		return
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "Missing guild_name parameter")
		return
	}

	icon := strings.TrimSpace(q.Get("guild_icon"))
	h.render(w, "success.html", pageData{
		GuildID:   gid.String(),
		GuildName: name,
		GuildIcon: icon,
		IconType:  iconType(icon),
	})
}

func (h *Handler) handleErrorPage(w http.ResponseWriter, r *http.Request) {
	gid, ok := queryGuildID(w, r)
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason != reasonBlacklisted {
		reason = reasonNotWhitelisted
	}
	h.render(w, "error.html", pageData{GuildID: gid.String(), Reason: reason})
}

func (h *Handler) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	gid, ok := queryGuildID(w, r)
	if !ok {
		return
	}
	h.render(w, "duplicate.html", pageData{GuildID: gid.String()})
}

func queryGuildID(w http.ResponseWriter, r *http.Request) (discordid.ID, bool) {
	raw := r.URL.Query().Get("guild_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing guild_id parameter")
		return 0, false
	}
	gid, err := discordid.Parse("guild_id", raw)
	if err != nil {
		writeRequestError(w, err)
		return 0, false
	}
	return gid, true
}

// iconType picks the CDN extension: animated icons carry the "a_" prefix.
func iconType(icon string) string {
	if strings.HasPrefix(icon, "a_") {
		return "gif"
	}
	return "png"
}
