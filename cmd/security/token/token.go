package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// MinEntropyBytes is the smallest random prefix Generate accepts.
	MinEntropyBytes = 8
	// DefaultEntropyBytes is used when callers pass 0.
	DefaultEntropyBytes = 24
	// MinHMACKeyBytes is enforced when HMAC is required.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher hashes opaque keys for server-side storage.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher from a configured secret.
// A blank secret selects plain SHA-256 unless require is set.
func NewHasher(secret string, require bool) (Hasher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		if require {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if require && len(secret) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(secret)}, nil
}

// HMAC reports whether the hasher is keyed.
func (h Hasher) HMAC() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest of s.
func (h Hasher) Hash(s string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(s)
	}
	return HashHMACSHA256Hex(s, h.key)
}

// Generate returns an unguessable URL-safe key: entropyBytes of crypto/rand
// output followed by the issuance time in base36 milliseconds.
func Generate(entropyBytes int, now time.Time) (string, error) {
	if entropyBytes == 0 {
		entropyBytes = DefaultEntropyBytes
	}
	if entropyBytes < MinEntropyBytes {
		return "", ErrEntropyTooLow
	}
	if now.IsZero() {
		now = time.Now()
	}

	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(base64.RawURLEncoding.EncodeToString(b))
	sb.WriteByte('.')
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	return sb.String(), nil
}
