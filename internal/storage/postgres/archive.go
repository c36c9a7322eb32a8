// Package postgres archives snapshot records in Postgres.
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

	"github.com/JakeFAU/scholarship-aggregator/internal/hash/sha256"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "scholarships"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Archive upserts records keyed by id. first_seen_at and the identity columns
// are written once; later runs only move last_seen_at, last_run_id and
// content_hash.
type Archive struct {
	pool   pool
	table  string
	hasher *sha256.Hasher
}

// New connects to Postgres.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	archive, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return archive, nil
}

// NewWithPool constructs an archive from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Archive, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Archive{pool: p, table: table, hasher: sha256.New()}, nil
}

// Name identifies the sink in logs and metrics.
func (a *Archive) Name() string { return "postgres" }

// Close releases the underlying pool resources.
func (a *Archive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// EnsureSchema creates the archive table when missing.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	title         TEXT NOT NULL,
	link          TEXT NOT NULL,
	date_posted   TEXT NOT NULL,
	organizer     TEXT NOT NULL,
	location      TEXT NOT NULL,
	category      TEXT NOT NULL,
	degree_levels TEXT[] NOT NULL,
	funding_types TEXT[] NOT NULL,
	content_hash  TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	last_run_id   TEXT NOT NULL
)`, a.table)
	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create archive table: %w", err)
	}
	return nil
}

// Store upserts records in one transaction.
func (a *Archive) Store(ctx context.Context, runID string, seenAt time.Time, records []record.Record) (err error) {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	query := a.upsertQuery()
	for _, r := range records {
		if _, err = tx.Exec(ctx, query, a.args(r, runID, seenAt)...); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}
	return nil
}

func (a *Archive) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	id,
	source,
	title,
	link,
	date_posted,
	organizer,
	location,
	category,
	degree_levels,
	funding_types,
	content_hash,
	first_seen_at,
	last_seen_at,
	last_run_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,$13
)
ON CONFLICT (id) DO UPDATE SET
	last_seen_at = EXCLUDED.last_seen_at,
	last_run_id = EXCLUDED.last_run_id,
	content_hash = EXCLUDED.content_hash`, a.table)
}

func (a *Archive) args(r record.Record, runID string, seenAt time.Time) []any {
	return []any{
		r.ID,
		r.Source,
		r.Title,
		r.Link,
		r.DatePosted,
		r.Organizer,
		r.Location,
		r.Category,
		r.DegreeLevels,
		r.FundingTypes,
		a.hasher.HashString(r.FullContent),
		seenAt.UTC(),
		runID,
	}
}
