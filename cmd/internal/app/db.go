package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbApplicationName = "guildgate"

// ErrLedgerSchemaMissing means the database is reachable but the ledger
// schema has not been migrated yet.
var ErrLedgerSchemaMissing = errors.New("ledger schema missing")

// NewDBPool opens the pool backing the ledger and state stores and checks
// that the ledger schema exists. Migrations run separately through goose
// (see migrations.Up).
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := dbPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, cfg.DBSchema, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// dbPoolConfig applies pool sizing and session defaults. The ledger schema
// leads search_path; the stores still qualify every table.
func dbPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	params := pcfg.ConnConfig.RuntimeParams
	if params == nil {
		params = map[string]string{}
		pcfg.ConnConfig.RuntimeParams = params
	}
	if params["application_name"] == "" {
		params["application_name"] = dbApplicationName
	}
	if cfg.DBSchema != "" && params["search_path"] == "" {
		params["search_path"] = cfg.DBSchema + ",public"
	}
	return pcfg, nil
}

// PingDB reports whether a connection can be acquired within timeout and the
// ledger schema is present.
func PingDB(parent context.Context, pool *pgxpool.Pool, schema string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if schema == "" {
		return nil
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, schema).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLedgerSchemaMissing, schema)
	}
	return nil
}
