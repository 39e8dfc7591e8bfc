package guild

import (
	"context"
	"errors"
	"time"

	"guildgate/cmd/internal/discordid"
)

// Decision is the outcome of an admission check.
type Decision uint8

const (
	DecisionAdmitted Decision = iota
	DecisionBlacklisted
	DecisionNotWhitelisted
	DecisionAlreadyInvited
)

func (d Decision) String() string {
	switch d {
	case DecisionAdmitted:
		return "admitted"
	case DecisionBlacklisted:
		return "blacklisted"
	case DecisionNotWhitelisted:
		return "not_whitelisted"
	case DecisionAlreadyInvited:
		return "already_invited"
	default:
		return "unknown"
	}
}

// Verdict is a Decision plus the ban that caused it, if any.
type Verdict struct {
	Decision  Decision
	Blacklist *BlacklistEntry
}

// Reason returns the ban reason for blacklisted verdicts.
func (v Verdict) Reason() string {
	if v.Blacklist == nil {
		return ""
	}
	return v.Blacklist.Reason
}

// InviteResult is the guild metadata returned by a successful OAuth exchange.
type InviteResult struct {
	GuildName string
	GuildIcon string
}

// Engine decides whether a guild may complete a bot invite.
type Engine struct {
	store Store
	opts  options
}

// NewEngine constructs an Engine.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Engine{store: store, opts: o}, nil
}

// Evaluate applies the fixed precedence: blacklist, whitelist presence, invited.
// Ban expiry is not checked here; only the sweep removes expired bans.
func (e *Engine) Evaluate(ctx context.Context, guildID discordid.ID) (Verdict, error) {
	if e == nil || e.store == nil {
		return Verdict{}, ErrInvalidInput
	}
	if guildID.IsZero() {
		return Verdict{}, ErrInvalidInput
	}

	v, err := e.evaluate(ctx, guildID)
	if err != nil {
		return Verdict{}, err
	}
	e.opts.metrics.AdmissionDecision(v.Decision.String())
	return v, nil
}

func (e *Engine) evaluate(ctx context.Context, guildID discordid.ID) (Verdict, error) {
	ban, err := e.store.GetBlacklist(ctx, guildID)
	switch {
	case err == nil:
		return Verdict{Decision: DecisionBlacklisted, Blacklist: &ban}, nil
	case !errors.Is(err, ErrNotFound):
		return Verdict{}, err
	}

	wl, err := e.store.GetWhitelist(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Verdict{Decision: DecisionNotWhitelisted}, nil
	case err != nil:
		return Verdict{}, err
	}

	if wl.Invited {
		return Verdict{Decision: DecisionAlreadyInvited}, nil
	}
	return Verdict{Decision: DecisionAdmitted}, nil
}

// FinalizeInvite marks the guild as invited after a successful exchange.
// It returns ErrAlreadyInvited when another callback won the race and
// ErrNotFound when the grant was revoked in the meantime.
func (e *Engine) FinalizeInvite(ctx context.Context, now time.Time, guildID discordid.ID, res InviteResult) error {
	if e == nil || e.store == nil {
		return ErrInvalidInput
	}
	if guildID.IsZero() {
		return ErrInvalidInput
	}
	now = nowOr(now)

	var audit AuditEntry
	err := e.store.WithGuildLock(ctx, guildID, func(q Queries) error {
		ok, err := q.MarkInvited(ctx, guildID, now)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := q.GetWhitelist(ctx, guildID); err != nil {
				return err
			}
			return ErrAlreadyInvited
		}

		audit, err = newAudit(now, guildID, 0, ActionInvited, map[string]any{
			"guild_name": res.GuildName,
		})
		if err != nil {
			return err
		}
		return q.InsertAudit(ctx, audit)
	})
	if err != nil {
		e.opts.metrics.LedgerOp("finalize", resultLabel(err))
		return err
	}

	e.opts.metrics.LedgerOp("finalize", "ok")
	e.opts.observer.GuildEvent(ctx, audit.event())
	return nil
}
