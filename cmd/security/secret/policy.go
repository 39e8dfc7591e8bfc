package secret

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinLength is the shortest plaintext secret CheckStrength accepts.
	MinLength = 16
	// MaxLength bounds the input fed to Argon2id.
	MaxLength = 256
)

// CheckStrength rejects plaintext secrets too short, too long or trivially
// guessable. It does not apply to encoded hashes.
func CheckStrength(s string) error {
	n := utf8.RuneCountInString(s)
	if n < MinLength {
		return ErrSecretTooShort
	}
	if n > MaxLength {
		return ErrSecretTooLong
	}
	if looksVeryWeak(s) {
		return ErrWeakSecret
	}
	return nil
}

// looksVeryWeak is intentionally minimal. It is not a zxcvbn-style estimator.
func looksVeryWeak(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}

	allSame := true
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits {
		return true
	}

	lower := strings.ToLower(s)
	for _, trivial := range []string{"password", "qwerty", "changeme", "secret"} {
		if strings.Trim(lower, "0123456789!_-.") == trivial || strings.Repeat(trivial, 2) == lower {
			return true
		}
	}
	return false
}
