package guild

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"guildgate/cmd/internal/discordid"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the ledger in PostgreSQL.
type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

type pgQueries struct {
	db     pgxQuerier
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "guildgate").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, pgQueries: pgQueries{db: pool, schema: "guildgate"}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Close is a no-op: the app owns the pool lifecycle.
func (s *PostgresStore) Close() error { return nil }

// WithGuildLock runs fn inside a transaction that first takes a transaction-scoped
// advisory lock keyed by the guild ID.
func (s *PostgresStore) WithGuildLock(ctx context.Context, guildID discordid.ID, fn func(q Queries) error) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, guildID.Int64()); err != nil {
		return err
	}
	if err := fn(pgQueries{db: tx, schema: s.schema}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (q pgQueries) GetWhitelist(ctx context.Context, guildID discordid.ID) (WhitelistEntry, error) {
	var (
		out          WhitelistEntry
		gid, uid     int64
		whitelistTbl = pgIdent(q.schema, "whitelist")
	)
	err := q.db.QueryRow(ctx,
		`SELECT guild_id, user_id, invited, created_at, updated_at
		   FROM `+whitelistTbl+`
		  WHERE guild_id = $1`,
		guildID.Int64(),
	).Scan(&gid, &uid, &out.Invited, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WhitelistEntry{}, ErrNotFound
		}
		return WhitelistEntry{}, err
	}
	out.GuildID, out.UserID = discordid.ID(gid), discordid.ID(uid)
	return out, nil
}

func (q pgQueries) UpsertWhitelist(ctx context.Context, in WhitelistEntry) (WhitelistEntry, bool, error) {
	if in.GuildID.IsZero() || in.UserID.IsZero() {
		return WhitelistEntry{}, false, ErrInvalidInput
	}
	now := in.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		out      WhitelistEntry
		gid, uid int64
		inserted bool
	)
	// xmax = 0 only for freshly inserted tuples.
	err := q.db.QueryRow(ctx,
		`INSERT INTO `+pgIdent(q.schema, "whitelist")+` (guild_id, user_id, invited, created_at, updated_at)
		 VALUES ($1, $2, false, $3, $3)
		 ON CONFLICT (guild_id) DO UPDATE
		    SET user_id = EXCLUDED.user_id,
		        invited = false,
		        updated_at = EXCLUDED.updated_at
		 RETURNING guild_id, user_id, invited, created_at, updated_at, (xmax = 0)`,
		in.GuildID.Int64(), in.UserID.Int64(), now,
	).Scan(&gid, &uid, &out.Invited, &out.CreatedAt, &out.UpdatedAt, &inserted)
	if err != nil {
		return WhitelistEntry{}, false, err
	}
	out.GuildID, out.UserID = discordid.ID(gid), discordid.ID(uid)
	return out, inserted, nil
}

func (q pgQueries) DeleteWhitelist(ctx context.Context, guildID discordid.ID) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM `+pgIdent(q.schema, "whitelist")+` WHERE guild_id = $1`,
		guildID.Int64(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q pgQueries) MarkInvited(ctx context.Context, guildID discordid.ID, now time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE `+pgIdent(q.schema, "whitelist")+`
		    SET invited = true, updated_at = $2
		  WHERE guild_id = $1
		    AND invited = false`,
		guildID.Int64(), now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q pgQueries) GetBlacklist(ctx context.Context, guildID discordid.ID) (BlacklistEntry, error) {
	var (
		out      BlacklistEntry
		gid, uid int64
	)
	err := q.db.QueryRow(ctx,
		`SELECT guild_id, user_id, reason, expires_at, created_at
		   FROM `+pgIdent(q.schema, "blacklist")+`
		  WHERE guild_id = $1`,
		guildID.Int64(),
	).Scan(&gid, &uid, &out.Reason, &out.ExpiresAt, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BlacklistEntry{}, ErrNotFound
		}
		return BlacklistEntry{}, err
	}
	out.GuildID, out.UserID = discordid.ID(gid), discordid.ID(uid)
	return out, nil
}

func (q pgQueries) InsertBlacklist(ctx context.Context, in BlacklistEntry) error {
	if in.GuildID.IsZero() || in.UserID.IsZero() {
		return ErrInvalidInput
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO `+pgIdent(q.schema, "blacklist")+` (guild_id, user_id, reason, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		in.GuildID.Int64(), in.UserID.Int64(), in.Reason, in.ExpiresAt, in.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyBlacklisted
		}
		return err
	}
	return nil
}

func (q pgQueries) DeleteBlacklist(ctx context.Context, guildID discordid.ID) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM `+pgIdent(q.schema, "blacklist")+` WHERE guild_id = $1`,
		guildID.Int64(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q pgQueries) DeleteExpiredBlacklist(ctx context.Context, now time.Time) ([]BlacklistEntry, error) {
	rows, err := q.db.Query(ctx,
		`DELETE FROM `+pgIdent(q.schema, "blacklist")+`
		  WHERE expires_at IS NOT NULL
		    AND expires_at < $1
		RETURNING guild_id, user_id, reason, expires_at, created_at`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlacklistEntry
	for rows.Next() {
		var (
			e        BlacklistEntry
			gid, uid int64
		)
		if err := rows.Scan(&gid, &uid, &e.Reason, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.GuildID, e.UserID = discordid.ID(gid), discordid.ID(uid)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q pgQueries) InsertNote(ctx context.Context, in NoteEntry) error {
	if strings.TrimSpace(in.ID) == "" || in.GuildID.IsZero() || in.UserID.IsZero() {
		return ErrInvalidInput
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO `+pgIdent(q.schema, "notes")+` (id, guild_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		in.ID, in.GuildID.Int64(), in.UserID.Int64(), in.Content, in.CreatedAt,
	)
	return err
}

func (q pgQueries) ListNotes(ctx context.Context, guildID discordid.ID) ([]NoteEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, guild_id, user_id, content, created_at
		   FROM `+pgIdent(q.schema, "notes")+`
		  WHERE guild_id = $1
		  ORDER BY created_at DESC, id DESC`,
		guildID.Int64(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]NoteEntry, 0, 8)
	for rows.Next() {
		var (
			n        NoteEntry
			gid, uid int64
		)
		if err := rows.Scan(&n.ID, &gid, &uid, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.GuildID, n.UserID = discordid.ID(gid), discordid.ID(uid)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q pgQueries) DeleteNotes(ctx context.Context, guildID discordid.ID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM `+pgIdent(q.schema, "notes")+` WHERE guild_id = $1`,
		guildID.Int64(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q pgQueries) InsertAudit(ctx context.Context, in AuditEntry) error {
	if strings.TrimSpace(in.ID) == "" || in.GuildID.IsZero() || strings.TrimSpace(in.Action) == "" {
		return ErrInvalidInput
	}

	var metaVal *string
	if len(in.Meta) > 0 {
		if b, err := json.Marshal(in.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := q.db.Exec(ctx,
		`INSERT INTO `+pgIdent(q.schema, "audit_log")+` (id, guild_id, user_id, action, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		in.ID, in.GuildID.Int64(), nullableID(in.UserID), in.Action, metaVal, in.CreatedAt,
	)
	return err
}

func (q pgQueries) ListAudit(ctx context.Context, guildID discordid.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	rows, err := q.db.Query(ctx,
		`SELECT id, guild_id, user_id, action, meta, created_at
		   FROM `+pgIdent(q.schema, "audit_log")+`
		  WHERE guild_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`,
		guildID.Int64(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AuditEntry, 0, 16)
	for rows.Next() {
		var (
			e    AuditEntry
			gid  int64
			uid  *int64
			meta []byte
		)
		if err := rows.Scan(&e.ID, &gid, &uid, &e.Action, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.GuildID = discordid.ID(gid)
		if uid != nil {
			e.UserID = discordid.ID(*uid)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableID(id discordid.ID) *int64 {
	if id.IsZero() {
		return nil
	}
	v := id.Int64()
	return &v
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
