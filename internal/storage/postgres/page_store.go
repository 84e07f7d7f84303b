// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitescrape/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "pages"

// PageStoreConfig controls the Postgres connection pool used for page rows.
type PageStoreConfig struct {
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

// PageStore writes accepted pages and a per-run summary row. Pages go to
// Table; summaries go to Table_runs.
type PageStore struct {
	pool  pool
	table string
}

// NewPageStore connects to Postgres using the provided config.
func NewPageStore(ctx context.Context, cfg PageStoreConfig) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
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
	return &PageStore{pool: p, table: table}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(p pool, table string) (*PageStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PageStore{pool: p, table: name}, nil
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
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the page and run tables when missing.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	pages := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      UUID NOT NULL,
	position    INTEGER NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	body_text   TEXT NOT NULL,
	images      JSONB NOT NULL,
	files       JSONB NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, pages); err != nil {
		return fmt.Errorf("create page table: %w", err)
	}
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_runs (
	run_id      UUID PRIMARY KEY,
	start_url   TEXT NOT NULL,
	domain      TEXT NOT NULL,
	state       TEXT NOT NULL,
	page_count  INTEGER NOT NULL,
	stats       JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, runs); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// SavePages inserts every page of a run in one transaction.
func (s *PageStore) SavePages(ctx context.Context, runID string, pages []crawler.PageRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(pages) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	position,
	url,
	title,
	description,
	body_text,
	images,
	files
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (run_id, url) DO NOTHING`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page insert: %w", err)
	}
	for i, page := range pages {
		images, err := jsonList(page.Images)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		files, err := jsonList(page.Files)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if _, err := tx.Exec(ctx, query, runID, i, page.URL, page.Title, page.Description, page.Text, images, files); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert page %s: %w", page.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page insert: %w", err)
	}
	return nil
}

// SaveRun records the run summary.
func (s *PageStore) SaveRun(ctx context.Context, result crawler.Result) error {
	if result.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s_runs (
	run_id,
	start_url,
	domain,
	state,
	page_count,
	stats,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)
	args := []any{
		result.RunID,
		result.StartURL,
		result.Domain,
		string(result.State),
		len(result.Pages),
		stats,
		result.StartedAt,
		result.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func jsonList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal list: %w", err)
	}
	return data, nil
}
