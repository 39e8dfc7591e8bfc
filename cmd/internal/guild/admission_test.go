package guild

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvaluate_UnknownGuildIsNotWhitelisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v, err := f.engine.Evaluate(context.Background(), newTestID(t))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Decision != DecisionNotWhitelisted {
		t.Fatalf("decision got=%s want=%s", v.Decision, DecisionNotWhitelisted)
	}
	if f.metrics.decisions["not_whitelisted"] != 1 {
		t.Fatalf("expected admission metric, got %v", f.metrics.decisions)
	}
}

func TestEvaluate_GrantThenAdmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	guildID := mustID(t, "123456789012345")
	userID := newTestID(t)

	res, err := f.ledger.Grant(ctx, fixedNow(), guildID, userID)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.Regranted {
		t.Fatalf("expected fresh grant")
	}
	if res.Entry.Invited {
		t.Fatalf("expected invited=false after grant")
	}

	v, err := f.engine.Evaluate(ctx, guildID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Decision != DecisionAdmitted {
		t.Fatalf("decision got=%s want=%s", v.Decision, DecisionAdmitted)
	}
}

func TestEvaluate_BlacklistWinsOverWhitelist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := fixedNow()

	cases := []struct {
		name    string
		invited bool
		ttl     time.Duration
		evalAt  time.Duration
	}{
		{name: "permanent ban, not invited"},
		{name: "permanent ban, invited", invited: true},
		{name: "expired ban not yet swept", ttl: time.Minute, evalAt: time.Hour},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			guildID := newTestID(t)
			mod := newTestID(t)

			if _, err := f.ledger.Grant(ctx, now, guildID, mod); err != nil {
				t.Fatalf("grant: %v", err)
			}
			if tc.invited {
				if err := f.engine.FinalizeInvite(ctx, now, guildID, InviteResult{GuildName: "g"}); err != nil {
					t.Fatalf("finalize: %v", err)
				}
			}
			if _, err := f.ledger.Ban(ctx, BanInput{GuildID: guildID, UserID: mod, Reason: "spam", TTL: tc.ttl, Now: now}); err != nil {
				t.Fatalf("ban: %v", err)
			}

			v, err := f.engine.Evaluate(ctx, guildID)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if v.Decision != DecisionBlacklisted {
				t.Fatalf("decision got=%s want=%s", v.Decision, DecisionBlacklisted)
			}
			if v.Reason() != "spam" {
				t.Fatalf("reason got=%q want=%q", v.Reason(), "spam")
			}
		})
	}
}

func TestFinalizeInvite_ThenAlreadyInvited(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := fixedNow()
	guildID := newTestID(t)

	if _, err := f.ledger.Grant(ctx, now, guildID, newTestID(t)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.engine.FinalizeInvite(ctx, now, guildID, InviteResult{GuildName: "Test Guild"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	v, err := f.engine.Evaluate(ctx, guildID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Decision != DecisionAlreadyInvited {
		t.Fatalf("decision got=%s want=%s", v.Decision, DecisionAlreadyInvited)
	}

	err = f.engine.FinalizeInvite(ctx, now, guildID, InviteResult{GuildName: "Test Guild"})
	if !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("second finalize got=%v want=%v", err, ErrAlreadyInvited)
	}

	audit, err := f.ledger.Audit(ctx, guildID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audit) != 2 || audit[0].Action != ActionInvited {
		t.Fatalf("expected invited audit on top, got %+v", audit)
	}
	if audit[0].Meta["guild_name"] != "Test Guild" {
		t.Fatalf("guild_name meta got=%v", audit[0].Meta["guild_name"])
	}
	if !audit[0].UserID.IsZero() {
		t.Fatalf("expected system actor for invite, got %s", audit[0].UserID)
	}
}

func TestFinalizeInvite_RevokedBeforeFinalize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := fixedNow()
	guildID, mod := newTestID(t), newTestID(t)

	if _, err := f.ledger.Grant(ctx, now, guildID, mod); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := f.ledger.Revoke(ctx, now, guildID, mod); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	err := f.engine.FinalizeInvite(ctx, now, guildID, InviteResult{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("finalize got=%v want=%v", err, ErrNotFound)
	}
	if f.metrics.ops["finalize/not_found"] != 1 {
		t.Fatalf("expected finalize not_found metric, got %v", f.metrics.ops)
	}
}

func TestRegrantResetsInvited(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := fixedNow()
	guildID := newTestID(t)
	first, second := newTestID(t), newTestID(t)

	if _, err := f.ledger.Grant(ctx, now, guildID, first); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.engine.FinalizeInvite(ctx, now, guildID, InviteResult{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	res, err := f.ledger.Grant(ctx, now.Add(time.Minute), guildID, second)
	if err != nil {
		t.Fatalf("regrant: %v", err)
	}
	if !res.Regranted {
		t.Fatalf("expected regrant")
	}
	if res.Entry.UserID != second || res.Entry.Invited {
		t.Fatalf("regrant entry got=%+v", res.Entry)
	}
	if !res.Entry.CreatedAt.Equal(now) {
		t.Fatalf("created_at should survive regrant, got %v", res.Entry.CreatedAt)
	}

	v, err := f.engine.Evaluate(ctx, guildID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Decision != DecisionAdmitted {
		t.Fatalf("decision got=%s want=%s", v.Decision, DecisionAdmitted)
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.engine.Evaluate(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got=%v want=%v", err, ErrInvalidInput)
	}
	if _, err := NewEngine(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil store got=%v want=%v", err, ErrInvalidInput)
	}
	if _, err := NewEngine(f.store, WithAuditLimit(0)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad option got=%v want=%v", err, ErrInvalidInput)
	}
}

func TestDecisionString(t *testing.T) {
	t.Parallel()

	cases := map[Decision]string{
		DecisionAdmitted:       "admitted",
		DecisionBlacklisted:    "blacklisted",
		DecisionNotWhitelisted: "not_whitelisted",
		DecisionAlreadyInvited: "already_invited",
		Decision(99):           "unknown",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Fatalf("Decision(%d).String() got=%q want=%q", d, got, want)
		}
	}
}
