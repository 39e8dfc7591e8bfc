package discord

import (
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIEndpoint  = "https://discord.com/api/v10"
	DefaultAuthorizeURL = "https://discord.com/oauth2/authorize"
	DefaultScopes       = "bot applications.commands"
	DefaultPermissions  = "8"
	defaultHTTPTimeout  = 10 * time.Second
)

// Config holds the OAuth application settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Scopes is space separated, as Discord expects.
	Scopes       string
	Permissions  string
	APIEndpoint  string
	AuthorizeURL string
	HTTPTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.RedirectURI = strings.TrimSpace(c.RedirectURI)
	c.Scopes = strings.Join(strings.Fields(c.Scopes), " ")
	if c.Scopes == "" {
		c.Scopes = DefaultScopes
	}
	if strings.TrimSpace(c.Permissions) == "" {
		c.Permissions = DefaultPermissions
	}
	c.APIEndpoint = strings.TrimRight(strings.TrimSpace(c.APIEndpoint), "/")
	if c.APIEndpoint == "" {
		c.APIEndpoint = DefaultAPIEndpoint
	}
	if strings.TrimSpace(c.AuthorizeURL) == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

// Validate checks required fields and URL shapes.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURI == "" {
		return ErrInvalidConfig
	}
	for _, raw := range []string{c.RedirectURI, c.APIEndpoint, c.AuthorizeURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalidConfig
		}
	}
	return nil
}
