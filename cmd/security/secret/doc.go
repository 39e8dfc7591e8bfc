// Package secret verifies the admin shared secret presented in the
// Authorization header.
//
// The configured secret is either a plain string, compared in constant time,
// or an Argon2id hash in PHC-like form:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Hash strings come from configuration, but are still decoded strictly and
// refused when their cost parameters are out of bounds.
package secret
