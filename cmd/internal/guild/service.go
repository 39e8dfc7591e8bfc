package guild

import (
	"context"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/ids"
)

const defaultAuditLimit = 100

// Event is a committed ledger mutation, delivered to the Observer.
type Event struct {
	ID      string
	Action  string
	GuildID discordid.ID
	UserID  discordid.ID
	At      time.Time
	Meta    map[string]any
}

// Observer is notified after a mutation commits. It must not block.
type Observer interface {
	GuildEvent(ctx context.Context, ev Event)
}

// Metrics receives counters for admission and ledger activity.
type Metrics interface {
	AdmissionDecision(decision string)
	LedgerOp(op, result string)
	SweepDeleted(table string, n int)
}

type nopObserver struct{}

func (nopObserver) GuildEvent(context.Context, Event) {}

type nopMetrics struct{}

func (nopMetrics) AdmissionDecision(string)  {}
func (nopMetrics) LedgerOp(string, string)   {}
func (nopMetrics) SweepDeleted(string, int) {}

type options struct {
	observer   Observer
	metrics    Metrics
	auditLimit int
}

// Option configures Engine and Ledger.
type Option func(*options) error

// WithObserver sets the post-commit event sink.
func WithObserver(o Observer) Option {
	return func(opts *options) error {
		if o == nil {
			return ErrInvalidInput
		}
		opts.observer = o
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(opts *options) error {
		if m == nil {
			return ErrInvalidInput
		}
		opts.metrics = m
		return nil
	}
}

// WithAuditLimit caps the rows returned by Ledger.Audit.
func WithAuditLimit(n int) Option {
	return func(opts *options) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		opts.auditLimit = n
		return nil
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{observer: nopObserver{}, metrics: nopMetrics{}, auditLimit: defaultAuditLimit}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}
	return o, nil
}

func newAudit(now time.Time, guildID, userID discordid.ID, action string, meta map[string]any) (AuditEntry, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return AuditEntry{}, err
	}
	return AuditEntry{
		ID:        id,
		GuildID:   guildID,
		UserID:    userID,
		Action:    action,
		Meta:      meta,
		CreatedAt: now,
	}, nil
}

func (a AuditEntry) event() Event {
	return Event{
		ID:      a.ID,
		Action:  a.Action,
		GuildID: a.GuildID,
		UserID:  a.UserID,
		At:      a.CreatedAt,
		Meta:    a.Meta,
	}
}

func nowOr(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now
}
