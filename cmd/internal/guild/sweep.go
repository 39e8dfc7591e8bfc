package guild

import (
	"context"
	"time"
)

// SweepExpired deletes bans whose expires_at is before now and returns how
// many were removed. Each removal is audited without an actor.
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if l == nil || l.store == nil {
		return 0, ErrInvalidInput
	}
	now = nowOr(now)

	expired, err := l.store.DeleteExpiredBlacklist(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, ban := range expired {
		meta := map[string]any{
			"banned_by": ban.UserID.String(),
			"reason":    ban.Reason,
		}
		if ban.ExpiresAt != nil {
			meta["expires_at"] = ban.ExpiresAt.UTC().Format(time.RFC3339)
		}
		audit, err := newAudit(now, ban.GuildID, 0, ActionBanExpired, meta)
		if err != nil {
			return len(expired), err
		}
		if err := l.store.InsertAudit(ctx, audit); err != nil {
			return len(expired), err
		}
		l.opts.observer.GuildEvent(ctx, audit.event())
	}

	l.opts.metrics.SweepDeleted("blacklist", len(expired))
	return len(expired), nil
}
