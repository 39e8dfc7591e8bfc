// Package oauthstate issues and consumes the single-use state tokens that tie
// an OAuth callback to the redirect that started it.
package oauthstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildgate/cmd/security/token"
)

const (
	defaultTTL = 60 * time.Second
	maxKeyLen  = 256
)

// IntegrationType distinguishes the two OAuth install flows.
type IntegrationType int16

const (
	GuildInstall IntegrationType = 0
	UserInstall  IntegrationType = 1
)

// Valid reports whether t is a known flow.
func (t IntegrationType) Valid() bool { return t == GuildInstall || t == UserInstall }

func (t IntegrationType) String() string {
	switch t {
	case GuildInstall:
		return "guild"
	case UserInstall:
		return "user"
	default:
		return fmt.Sprintf("integration(%d)", int16(t))
	}
}

// Token is the caller-visible view of a state row.
type Token struct {
	IntegrationType IntegrationType
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Metrics receives state-token counters.
type Metrics interface {
	StateIssued(integration string)
	StateConsumed(result string)
	SweepDeleted(table string, n int)
}

type nopMetrics struct{}

func (nopMetrics) StateIssued(string)       {}
func (nopMetrics) StateConsumed(string)     {}
func (nopMetrics) SweepDeleted(string, int) {}

// Manager issues, consumes and sweeps state tokens.
type Manager struct {
	store        Store
	hasher       token.Hasher
	ttl          time.Duration
	entropyBytes int
	metrics      Metrics
}

// Option configures the Manager.
type Option func(*Manager) error

// WithTTL sets the lifetime of issued tokens.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		m.ttl = d
		return nil
	}
}

// WithHasher sets the key hasher (default: plain SHA-256).
func WithHasher(h token.Hasher) Option {
	return func(m *Manager) error {
		m.hasher = h
		return nil
	}
}

// WithEntropyBytes sets the random prefix length of generated keys.
func WithEntropyBytes(n int) Option {
	return func(m *Manager) error {
		if n < token.MinEntropyBytes {
			return ErrInvalidInput
		}
		m.entropyBytes = n
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) error {
		if mt == nil {
			return ErrInvalidInput
		}
		m.metrics = mt
		return nil
	}
}

// NewManager constructs a Manager with safe defaults.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	m := &Manager{
		store:        store,
		ttl:          defaultTTL,
		entropyBytes: token.DefaultEntropyBytes,
		metrics:      nopMetrics{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a state token and returns its plaintext key for the redirect URL.
func (m *Manager) Issue(ctx context.Context, now time.Time, it IntegrationType) (string, Token, error) {
	if m == nil || m.store == nil || !it.Valid() {
		return "", Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return "", Token{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	key, err := token.Generate(m.entropyBytes, now)
	if err != nil {
		return "", Token{}, err
	}

	rec := Record{
		KeyHash:         m.hasher.Hash(key),
		IntegrationType: it,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return "", Token{}, err
	}

	m.metrics.StateIssued(it.String())
	return key, rec.token(), nil
}

// Consume deletes the token for key before returning it, so a replayed
// callback finds nothing. A row that is past expiry but not yet swept is
// deleted and reported as ErrInvalidState.
func (m *Manager) Consume(ctx context.Context, now time.Time, key string) (Token, error) {
	if m == nil || m.store == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLen {
		m.metrics.StateConsumed("invalid")
		return Token{}, ErrInvalidState
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec, err := m.store.Take(ctx, m.hasher.Hash(key))
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			m.metrics.StateConsumed("invalid")
		}
		return Token{}, err
	}
	if !now.Before(rec.ExpiresAt) {
		m.metrics.StateConsumed("expired")
		return Token{}, ErrInvalidState
	}

	m.metrics.StateConsumed("ok")
	return rec.token(), nil
}

// Sweep deletes expired rows and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	if m == nil || m.store == nil {
		return 0, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	n, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	m.metrics.SweepDeleted("states", int(n))
	return int(n), nil
}

func (r Record) token() Token {
	return Token{
		IntegrationType: r.IntegrationType,
		IssuedAt:        r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
