package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"guildgate/cmd/internal/discord"
	"guildgate/cmd/internal/feed"
	"guildgate/cmd/internal/gateapi"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL empty selects the in-memory stores.
	DatabaseURL   string
	DBSchema      string
	DBMaxConns    int32
	DBMinConns    int32
	DBAutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string
	DiscordScopes       string
	DiscordPermissions  string
	DiscordAPIEndpoint  string
	DiscordAuthorizeURL string
	DiscordHTTPTimeout  time.Duration

	// APIToken is the admin shared secret, plain or an argon2id hash.
	APIToken string

	StateTTL               time.Duration
	StateSweepInterval     time.Duration
	BlacklistSweepInterval time.Duration

	// If true, GUILDGATE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and state keys
	// are stored as HMAC digests.
	TokenHMACKey     string
	RequireTokenHMAC bool

	SupportServer string
	BotWebsite    string

	MaxBodyBytes        int64
	TrustProxy          bool
	AdminAuthFailMax    int
	AdminAuthFailWindow time.Duration

	MetricsEnabled bool

	FeedEnabled           bool
	FeedSendQueue         int
	FeedHeartbeatInterval time.Duration
	FeedAllowedOrigins    []string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("GUILDGATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("GUILDGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("GUILDGATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("GUILDGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GUILDGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GUILDGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GUILDGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GUILDGATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("GUILDGATE_DATABASE_URL", ""),
		DBSchema:      EnvString("GUILDGATE_DB_SCHEMA", "guildgate"),
		DBMaxConns:    EnvInt32("GUILDGATE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("GUILDGATE_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("GUILDGATE_DB_AUTO_MIGRATE", true),

		ReadinessRequireDB: EnvBool("GUILDGATE_READINESS_REQUIRE_DB", false),

		DiscordClientID:     EnvString("GUILDGATE_DISCORD_CLIENT_ID", ""),
		DiscordClientSecret: EnvString("GUILDGATE_DISCORD_CLIENT_SECRET", ""),
		DiscordRedirectURI:  EnvString("GUILDGATE_DISCORD_REDIRECT_URI", ""),
		DiscordScopes:       EnvString("GUILDGATE_DISCORD_SCOPES", discord.DefaultScopes),
		DiscordPermissions:  EnvString("GUILDGATE_DISCORD_PERMISSIONS", discord.DefaultPermissions),
		DiscordAPIEndpoint:  EnvString("GUILDGATE_DISCORD_API_ENDPOINT", discord.DefaultAPIEndpoint),
		DiscordAuthorizeURL: EnvString("GUILDGATE_DISCORD_AUTHORIZE_URL", discord.DefaultAuthorizeURL),
		DiscordHTTPTimeout:  EnvDuration("GUILDGATE_DISCORD_HTTP_TIMEOUT", 10*time.Second),

		APIToken: EnvString("GUILDGATE_API_TOKEN", ""),

		StateTTL:               EnvDuration("GUILDGATE_STATE_TTL", 60*time.Second),
		StateSweepInterval:     EnvDuration("GUILDGATE_STATE_SWEEP_INTERVAL", 5*time.Second),
		BlacklistSweepInterval: EnvDuration("GUILDGATE_BLACKLIST_SWEEP_INTERVAL", 30*time.Second),

		TokenHMACKey:     EnvString("GUILDGATE_TOKEN_HMAC_KEY", ""),
		RequireTokenHMAC: EnvBool("GUILDGATE_REQUIRE_TOKEN_HMAC", false),

		SupportServer: EnvString("GUILDGATE_SUPPORT_SERVER", ""),
		BotWebsite:    EnvString("GUILDGATE_BOT_WEBSITE", ""),

		MaxBodyBytes:        EnvInt64("GUILDGATE_MAX_BODY_BYTES", 64<<10),
		TrustProxy:          EnvBool("GUILDGATE_TRUST_PROXY", false),
		AdminAuthFailMax:    EnvInt("GUILDGATE_ADMIN_AUTH_FAIL_MAX", 10),
		AdminAuthFailWindow: EnvDuration("GUILDGATE_ADMIN_AUTH_FAIL_WINDOW", time.Minute),

		MetricsEnabled: EnvBool("GUILDGATE_METRICS_ENABLED", true),

		FeedEnabled:           EnvBool("GUILDGATE_FEED_ENABLED", true),
		FeedSendQueue:         EnvInt("GUILDGATE_FEED_SEND_QUEUE", 64),
		FeedHeartbeatInterval: EnvDuration("GUILDGATE_FEED_HEARTBEAT_INTERVAL", 25*time.Second),
		FeedAllowedOrigins:    EnvCSV("GUILDGATE_FEED_ALLOWED_ORIGINS"),
	}
}

// ValidateConfig fails fast on settings the service cannot run without.
func ValidateConfig(cfg Config) error {
	var errs []error

	if err := cfg.discordConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: GUILDGATE_DISCORD_CLIENT_ID, GUILDGATE_DISCORD_CLIENT_SECRET and GUILDGATE_DISCORD_REDIRECT_URI are required: %w", err))
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		errs = append(errs, errors.New("config: GUILDGATE_API_TOKEN is required"))
	}
	if cfg.StateSweepInterval >= cfg.BlacklistSweepInterval {
		errs = append(errs, errors.New("config: GUILDGATE_STATE_SWEEP_INTERVAL must be shorter than GUILDGATE_BLACKLIST_SWEEP_INTERVAL"))
	}
	if cfg.DatabaseURL != "" && strings.TrimSpace(cfg.DBSchema) == "" {
		errs = append(errs, errors.New("config: GUILDGATE_DB_SCHEMA must not be blank"))
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) discordConfig() discord.Config {
	return discord.Config{
		ClientID:     c.DiscordClientID,
		ClientSecret: c.DiscordClientSecret,
		RedirectURI:  c.DiscordRedirectURI,
		Scopes:       c.DiscordScopes,
		Permissions:  c.DiscordPermissions,
		APIEndpoint:  c.DiscordAPIEndpoint,
		AuthorizeURL: c.DiscordAuthorizeURL,
		HTTPTimeout:  c.DiscordHTTPTimeout,
	}
}

func (c Config) gateConfig() gateapi.Config {
	return gateapi.Config{
		MaxBodyBytes:   c.MaxBodyBytes,
		TrustProxy:     c.TrustProxy,
		AuthFailMax:    c.AdminAuthFailMax,
		AuthFailWindow: c.AdminAuthFailWindow,
		SupportServer:  c.SupportServer,
		BotWebsite:     c.BotWebsite,
	}
}

func (c Config) feedConfig() feed.Config {
	return feed.Config{
		SendQueue:         c.FeedSendQueue,
		HeartbeatInterval: c.FeedHeartbeatInterval,
		AllowedOrigins:    c.FeedAllowedOrigins,
	}
}
