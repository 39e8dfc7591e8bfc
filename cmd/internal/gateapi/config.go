package gateapi

import "time"

const (
	defaultMaxBodyBytes   = 64 << 10
	defaultAuthFailMax    = 10
	defaultAuthFailWindow = time.Minute
)

// Config controls the HTTP surface. Zero values select defaults.
type Config struct {
	MaxBodyBytes int64
	TrustProxy   bool

	// AuthFailMax failed admin authentications per client IP within
	// AuthFailWindow block further attempts with 429.
	AuthFailMax    int
	AuthFailWindow time.Duration

	SupportServer string
	BotWebsite    string
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.AuthFailMax <= 0 {
		c.AuthFailMax = defaultAuthFailMax
	}
	if c.AuthFailWindow <= 0 {
		c.AuthFailWindow = defaultAuthFailWindow
	}
	return c
}
