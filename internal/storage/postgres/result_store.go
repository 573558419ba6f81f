// Package postgres records per-URL crawl results in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/hash/sha256"
)

const defaultTable = "crawl_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ResultStore writes one row per fetched URL.
//
//	CREATE TABLE crawl_results (
//		run_id      text        NOT NULL,
//		position    integer     NOT NULL,
//		url         text        NOT NULL,
//		success     boolean     NOT NULL,
//		status_code integer,
//		kind        text,
//		error       text,
//		bytes       integer     NOT NULL,
//		content_sha256 text,
//		recorded_at timestamptz NOT NULL,
//		PRIMARY KEY (run_id, position)
//	);
type ResultStore struct {
	pool  pool
	table string
}

// New connects a pool and returns a ResultStore.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveResults inserts every result of a run in a single transaction. Row
// position matches the input order.
func (s *ResultStore) SaveResults(ctx context.Context, runID string, recordedAt time.Time, results []crawler.FetchResult) (err error) {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (run_id, position, url, success, status_code, kind, error, bytes, content_sha256, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, s.table)

	for i, r := range results {
		if _, err = tx.Exec(ctx, query,
			runID,
			i,
			r.URL,
			r.Success,
			nullableStatus(r.StatusCode),
			nullableString(string(r.Kind)),
			nullableString(r.Error),
			len(r.Content),
			nullableString(sha256.ContentDigest(r.Content)),
			recordedAt,
		); err != nil {
			return fmt.Errorf("insert result %q: %w", r.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

func nullableStatus(code int) *int {
	if code == 0 {
		return nil
	}
	return &code
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
