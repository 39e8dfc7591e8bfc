// Package token generates and hashes the opaque state keys used to correlate
// OAuth redirects with their callbacks.
//
// Hashing modes:
// - SHA-256(key) when no HMAC key is configured (dev default).
// - HMAC-SHA256(key, secret) when a secret is configured; RequireHMAC makes
//   the secret mandatory and enforces a minimum length.
//
// Output is always 64 lowercase hex characters, suitable for a fixed-width
// primary key.
package token
