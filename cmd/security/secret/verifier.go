package secret

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
)

// Verifier checks presented secrets against the configured one.
//
// For hashed secrets, a successful Argon2id verification is remembered by
// SHA-256 digest so repeated admin calls skip the expensive derivation.
type Verifier struct {
	plain   [32]byte
	encoded string
	limits  Params

	mu       sync.Mutex
	verified map[[32]byte]struct{}
}

// NewVerifier builds a Verifier from a configured secret or Argon2id hash.
func NewVerifier(configured string) (*Verifier, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return nil, ErrEmptySecret
	}

	v := &Verifier{limits: DefaultParams()}
	if IsHash(configured) {
		if _, _, _, err := decode(configured); err != nil {
			return nil, err
		}
		v.encoded = configured
		v.verified = make(map[[32]byte]struct{}, 1)
		return v, nil
	}

	v.plain = sha256.Sum256([]byte(configured))
	return v, nil
}

// Hashed reports whether the configured secret is an Argon2id hash.
func (v *Verifier) Hashed() bool { return v != nil && v.encoded != "" }

// Verify reports whether presented matches. Malformed hashes never match.
func (v *Verifier) Verify(presented string) bool {
	if v == nil || presented == "" {
		return false
	}
	digest := sha256.Sum256([]byte(presented))

	if v.encoded == "" {
		return subtle.ConstantTimeCompare(digest[:], v.plain[:]) == 1
	}

	v.mu.Lock()
	_, ok := v.verified[digest]
	v.mu.Unlock()
	if ok {
		return true
	}

	match, err := verifyHash(v.encoded, presented, v.limits)
	if err != nil || !match {
		return false
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return true
}
