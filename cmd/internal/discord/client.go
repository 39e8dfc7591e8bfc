// Package discord talks to Discord's OAuth2 endpoints: it builds authorize
// URLs and exchanges authorization codes for the installed guild's metadata.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// Guild is the partial guild object Discord returns with a bot install.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// ExchangeResult is the useful part of a token response.
type ExchangeResult struct {
	Guild *Guild
	Scope string
}

// Metrics receives exchange outcomes.
type Metrics interface {
	OAuthExchange(result string)
}

type nopMetrics struct{}

func (nopMetrics) OAuthExchange(string) {}

// Client performs OAuth calls against Discord.
type Client struct {
	cfg     Config
	oauth   *oauth2.Config
	http    *http.Client
	metrics Metrics
}

// Option configures the Client.
type Option func(*Client) error

// WithHTTPClient overrides the HTTP client (tests, custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return ErrInvalidConfig
		}
		c.http = hc
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) error {
		if m == nil {
			return ErrInvalidConfig
		}
		c.metrics = m
		return nil
	}
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.APIEndpoint + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AuthorizeURL builds the consent URL for the given install flow.
// integrationType 0 is a guild install (bot scope and permissions),
// 1 is a user install.
func (c *Client) AuthorizeURL(state string, integrationType int) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("integration_type", strconv.Itoa(integrationType)),
	}
	if integrationType == 0 {
		opts = append(opts, oauth2.SetAuthURLParam("permissions", c.cfg.Permissions))
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("scope", userScopes(c.cfg.Scopes)))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a token response.
// Transport failures and unreadable bodies return *UpstreamError;
// an {"error": ...} payload returns *ProviderError.
func (c *Client) Exchange(ctx context.Context, code string) (ExchangeResult, error) {
	if c == nil {
		return ExchangeResult{}, ErrInvalidConfig
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ExchangeResult{}, ErrMissingCode
	}

	res, err := c.exchange(ctx, code)
	c.metrics.OAuthExchange(exchangeLabel(err))
	return res, err
}

func (c *Client) exchange(ctx context.Context, code string) (ExchangeResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("scope", c.cfg.Scopes))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			pe := &ProviderError{Code: re.ErrorCode, Description: re.ErrorDescription}
			if re.Response != nil {
				pe.Status = re.Response.StatusCode
			}
			return ExchangeResult{}, pe
		}
		return ExchangeResult{}, &UpstreamError{Op: "token request", Err: err}
	}

	res := ExchangeResult{}
	if scope, ok := tok.Extra("scope").(string); ok {
		res.Scope = scope
	}
	g, err := guildFromToken(tok)
	if err != nil {
		return ExchangeResult{}, &UpstreamError{Op: "decode guild", Err: err}
	}
	res.Guild = g
	return res, nil
}

// guildFromToken reads the partial guild object Discord attaches to bot
// install token responses. Nil when absent.
func guildFromToken(tok *oauth2.Token) (*Guild, error) {
	raw := tok.Extra("guild")
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var g Guild
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func userScopes(scopes string) string {
	out := make([]string, 0, 2)
	for _, s := range strings.Fields(scopes) {
		if s == "bot" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "applications.commands"
	}
	return strings.Join(out, " ")
}

func exchangeLabel(err error) string {
	var pe *ProviderError
	var ue *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pe):
		return "provider_error"
	case errors.As(err, &ue):
		return "upstream_error"
	default:
		return "error"
	}
}
