// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
	"github.com/crawlfleet/crawlfleet/internal/hash/sha256"
	"github.com/crawlfleet/crawlfleet/internal/id/uuid"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PageStoreConfig controls the Postgres connection pool used for the
// page archive.
type PageStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PageStore archives crawled pages into Postgres. It is the consumer's
// downstream action for acknowledged deliveries.
type PageStore struct {
	pool  execCloser
	table string
	now   func() time.Time
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg PageStoreConfig) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PageStore{pool: pool, table: table, now: time.Now}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool execCloser, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SavePage inserts one crawled page. Header, meta, and link lists are
// stored as JSON arrays; the body is stored verbatim.
func (s *PageStore) SavePage(ctx context.Context, page crawl.PageResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if page.URL == "" {
		return fmt.Errorf("page url is required")
	}

	headersJSON, err := json.Marshal(emptyIfNil(page.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	metaJSON, err := json.Marshal(emptyIfNil(page.Meta))
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	linksJSON, err := json.Marshal(emptyIfNil(page.Links))
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	rowID, err := uuid.NewID()
	if err != nil {
		return fmt.Errorf("generate row id: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	title,
	status_code,
	headers,
	meta,
	links,
	body,
	body_hash,
	archived_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		rowID,
		page.URL,
		page.Title,
		page.StatusCode,
		headersJSON,
		metaJSON,
		linksJSON,
		page.Body,
		sha256.Digest([]byte(page.Body)),
		s.now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
