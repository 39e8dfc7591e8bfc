package app

import (
	"errors"
	"fmt"
	"strings"

	"guildgate/cmd/security/secret"
	"guildgate/cmd/security/token"
)

// ValidateSecurityConfig enforces the secret-handling policy at startup.
// Falling back to weaker hashing under policy is never silent: it fails here.
func ValidateSecurityConfig(cfg Config) error {
	h, err := token.NewHasher(cfg.TokenHMACKey, cfg.RequireTokenHMAC)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: GUILDGATE_REQUIRE_TOKEN_HMAC=true but GUILDGATE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: GUILDGATE_REQUIRE_TOKEN_HMAC=true but GUILDGATE_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
		default:
			return err
		}
	}
	if cfg.RequireTokenHMAC && !h.HMAC() {
		return errors.New("security policy: GUILDGATE_REQUIRE_TOKEN_HMAC=true but state hasher is not in HMAC mode")
	}

	if tok := strings.TrimSpace(cfg.APIToken); tok != "" {
		if _, err := secret.NewVerifier(tok); err != nil {
			return fmt.Errorf("security policy: GUILDGATE_API_TOKEN: %w", err)
		}
		if !secret.IsHash(tok) {
			if err := secret.CheckStrength(tok); err != nil {
				return fmt.Errorf("security policy: GUILDGATE_API_TOKEN: %w", err)
			}
		}
	}
	return nil
}
