// Package guild implements guild admission and the moderation ledger.
//
// The Store is the single source of truth: Engine and Ledger keep no copies of
// whitelist, blacklist or note rows and re-read them on every decision.
//
// Admission precedence is fixed: blacklist, then whitelist presence, then the
// invited flag. A blacklist row blocks admission until it is deleted by unban
// or by the expiry sweep, even when its expires_at has already passed.
package guild
