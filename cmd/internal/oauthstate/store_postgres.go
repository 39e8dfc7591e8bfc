package oauthstate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore persists state tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
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
	st := &PostgresStore{pool: pool, schema: "guildgate"}
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

func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(rec.KeyHash) == "" || rec.ExpiresAt.IsZero() {
		return ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (key_hash, integration_type, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		rec.KeyHash, int16(rec.IntegrationType), rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrInvalidInput
		}
		return err
	}
	return nil
}

// Take is a single DELETE ... RETURNING, so only one caller can observe the row.
func (s *PostgresStore) Take(ctx context.Context, keyHash string) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrInvalidInput
	}

	var (
		rec Record
		it  int16
	)
	err := s.pool.QueryRow(ctx,
		`DELETE FROM `+s.table()+`
		  WHERE key_hash = $1
		RETURNING key_hash, integration_type, created_at, expires_at`,
		keyHash,
	).Scan(&rec.KeyHash, &it, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrInvalidState
		}
		return Record{}, err
	}
	rec.IntegrationType = IntegrationType(it)
	return rec, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrInvalidInput
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "states"}.Sanitize()
}
