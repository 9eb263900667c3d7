// Package postgres provides a Postgres-backed checkpoint backend so several
// operators can inspect one crawl's progress from a shared database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const defaultTablePrefix = "crawl_checkpoint"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CheckpointStoreConfig controls the Postgres connection pool used for checkpoints.
type CheckpointStoreConfig struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// CheckpointStore is a checkpoint.Backend on two tables:
// <prefix>_completed (one row per finished item) and <prefix>_meta (a single
// row with version, frontier, and updated_at).
type CheckpointStore struct {
	pool      pool
	completed string
	meta      string
}

// NewCheckpointStore connects to Postgres and creates the tables when missing.
func NewCheckpointStore(ctx context.Context, cfg CheckpointStoreConfig) (*CheckpointStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("checkpoint.dsn is required")
	}
	if err := validatePrefix(cfg.TablePrefix); err != nil {
		return nil, err
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
	store, err := NewCheckpointStoreWithPool(p, cfg.TablePrefix)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCheckpointStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCheckpointStoreWithPool(p pool, prefix string) (*CheckpointStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultTablePrefix
	}
	return &CheckpointStore{
		pool:      p,
		completed: prefix + "_completed",
		meta:      prefix + "_meta",
	}, nil
}

func validatePrefix(prefix string) error {
	if prefix != "" && !validTableName.MatchString(prefix) {
		return fmt.Errorf("invalid table prefix %q", prefix)
	}
	return nil
}

// EnsureSchema creates the checkpoint tables.
func (s *CheckpointStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	url TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	children JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS %[2]s (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	version INTEGER NOT NULL,
	frontier JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL
)`, s.completed, s.meta)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create checkpoint tables: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *CheckpointStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Load reads the meta row and every completed row.
func (s *CheckpointStore) Load(ctx context.Context) (checkpoint.State, error) {
	state := checkpoint.NewState()

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT version, frontier, updated_at FROM %s WHERE id = 1`, s.meta))
	if err != nil {
		return checkpoint.State{}, fmt.Errorf("query checkpoint meta: %w", err)
	}
	for rows.Next() {
		var frontier []byte
		if err := rows.Scan(&state.Version, &frontier, &state.UpdatedAt); err != nil {
			rows.Close()
			return checkpoint.State{}, fmt.Errorf("scan checkpoint meta: %w", err)
		}
		if err := json.Unmarshal(frontier, &state.Frontier); err != nil {
			rows.Close()
			return checkpoint.State{}, fmt.Errorf("%w: frontier: %v", crawler.ErrCheckpointCorrupt, err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return checkpoint.State{}, fmt.Errorf("read checkpoint meta: %w", err)
	}

	rows, err = s.pool.Query(ctx, fmt.Sprintf(`SELECT key, kind, url, completed_at, children FROM %s`, s.completed))
	if err != nil {
		return checkpoint.State{}, fmt.Errorf("query completed items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entry    checkpoint.CompletedEntry
			kind     string
			children []byte
		)
		if err := rows.Scan(&entry.Key, &kind, &entry.URL, &entry.CompletedAt, &children); err != nil {
			return checkpoint.State{}, fmt.Errorf("scan completed item: %w", err)
		}
		entry.Kind = crawler.Kind(kind)
		if err := json.Unmarshal(children, &entry.Children); err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: children of %s: %v", crawler.ErrCheckpointCorrupt, entry.Key, err)
		}
		if len(entry.Children) == 0 {
			entry.Children = nil
		}
		state.Completed[entry.Key] = entry
	}
	if err := rows.Err(); err != nil {
		return checkpoint.State{}, fmt.Errorf("read completed items: %w", err)
	}
	return state, nil
}

// MarkDone upserts entry and the meta row in one transaction.
func (s *CheckpointStore) MarkDone(ctx context.Context, entry checkpoint.CompletedEntry, updatedAt time.Time) error {
	children, err := json.Marshal(nonNil(entry.Children))
	if err != nil {
		return fmt.Errorf("marshal children: %w", err)
	}
	completed := fmt.Sprintf(`
INSERT INTO %s (key, kind, url, completed_at, children)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (key) DO UPDATE SET
	kind = EXCLUDED.kind,
	url = EXCLUDED.url,
	completed_at = EXCLUDED.completed_at,
	children = EXCLUDED.children`, s.completed)
	meta := fmt.Sprintf(`
INSERT INTO %s (id, version, updated_at)
VALUES (1,$1,$2)
ON CONFLICT (id) DO UPDATE SET
	version = EXCLUDED.version,
	updated_at = EXCLUDED.updated_at`, s.meta)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, completed, entry.Key, string(entry.Kind), entry.URL, entry.CompletedAt, children); err != nil {
			return fmt.Errorf("upsert completed %s: %w", entry.Key, err)
		}
		if _, err := tx.Exec(ctx, meta, checkpoint.Version, updatedAt); err != nil {
			return fmt.Errorf("upsert checkpoint meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// SaveFrontier upserts the meta row's frontier.
func (s *CheckpointStore) SaveFrontier(ctx context.Context, frontier []crawler.WorkItem, updatedAt time.Time) error {
	data, err := json.Marshal(nonNil(frontier))
	if err != nil {
		return fmt.Errorf("marshal frontier: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, version, frontier, updated_at)
VALUES (1,$1,$2,$3)
ON CONFLICT (id) DO UPDATE SET
	version = EXCLUDED.version,
	frontier = EXCLUDED.frontier,
	updated_at = EXCLUDED.updated_at`, s.meta)
	if _, err := s.pool.Exec(ctx, query, checkpoint.Version, data, updatedAt); err != nil {
		return fmt.Errorf("save frontier: %w", err)
	}
	return nil
}

// Reset deletes both tables' rows in one transaction.
func (s *CheckpointStore) Reset(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.completed)); err != nil {
			return fmt.Errorf("clear completed: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.meta)); err != nil {
			return fmt.Errorf("clear meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}

func nonNil(items []crawler.WorkItem) []crawler.WorkItem {
	if items == nil {
		return []crawler.WorkItem{}
	}
	return items
}
