// Package sqlite provides a checkpoint backend on an embedded SQLite file.
// Each completion is a single-row upsert, so a crash loses at most the item
// in flight.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// FileName is the database file inside the checkpoint directory.
const FileName = "checkpoint.db"

const schema = `
CREATE TABLE IF NOT EXISTS completed (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	url TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	children TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_completed_kind ON completed(kind);

CREATE TABLE IF NOT EXISTS meta (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	metaVersion   = "version"
	metaFrontier  = "frontier"
	metaUpdatedAt = "updated_at"
)

// CheckpointStore is a checkpoint.Backend on SQLite.
type CheckpointStore struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the checkpoint database under dir.
func Open(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &CheckpointStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location.
func (s *CheckpointStore) Path() string {
	return s.dbPath
}

// Load reads every completed row plus the meta values.
func (s *CheckpointStore) Load(ctx context.Context) (checkpoint.State, error) {
	state := checkpoint.NewState()

	meta, err := s.readMeta(ctx)
	if err != nil {
		return checkpoint.State{}, err
	}
	if raw, ok := meta[metaVersion]; ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: version %q", crawler.ErrCheckpointCorrupt, raw)
		}
		state.Version = v
	}
	if raw, ok := meta[metaFrontier]; ok {
		if err := json.Unmarshal([]byte(raw), &state.Frontier); err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: frontier: %v", crawler.ErrCheckpointCorrupt, err)
		}
	}
	if raw, ok := meta[metaUpdatedAt]; ok {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: updated_at %q", crawler.ErrCheckpointCorrupt, raw)
		}
		state.UpdatedAt = ts
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, kind, url, completed_at, children FROM completed`)
	if err != nil {
		return checkpoint.State{}, fmt.Errorf("query completed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			entry                 checkpoint.CompletedEntry
			kind, completedAt, childJSON string
		)
		if err := rows.Scan(&entry.Key, &kind, &entry.URL, &completedAt, &childJSON); err != nil {
			return checkpoint.State{}, fmt.Errorf("scan completed: %w", err)
		}
		entry.Kind = crawler.Kind(kind)
		if entry.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: completed_at %q", crawler.ErrCheckpointCorrupt, completedAt)
		}
		if err := json.Unmarshal([]byte(childJSON), &entry.Children); err != nil {
			return checkpoint.State{}, fmt.Errorf("%w: children of %s: %v", crawler.ErrCheckpointCorrupt, entry.Key, err)
		}
		if len(entry.Children) == 0 {
			entry.Children = nil
		}
		state.Completed[entry.Key] = entry
	}
	if err := rows.Err(); err != nil {
		return checkpoint.State{}, fmt.Errorf("iterate completed: %w", err)
	}
	return state, nil
}

func (s *CheckpointStore) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	return out, nil
}

// MarkDone upserts entry and bumps updated_at in one transaction.
func (s *CheckpointStore) MarkDone(ctx context.Context, entry checkpoint.CompletedEntry, updatedAt time.Time) error {
	children, err := json.Marshal(nonNil(entry.Children))
	if err != nil {
		return fmt.Errorf("encode children: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO completed (key, kind, url, completed_at, children)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				kind = excluded.kind,
				url = excluded.url,
				completed_at = excluded.completed_at,
				children = excluded.children`,
			entry.Key, string(entry.Kind), entry.URL, formatTime(entry.CompletedAt), string(children))
		if err != nil {
			return fmt.Errorf("upsert completed %s: %w", entry.Key, err)
		}
		return putMeta(ctx, tx, map[string]string{
			metaVersion:   strconv.Itoa(checkpoint.Version),
			metaUpdatedAt: formatTime(updatedAt),
		})
	})
}

// SaveFrontier stores the frontier as one JSON value.
func (s *CheckpointStore) SaveFrontier(ctx context.Context, frontier []crawler.WorkItem, updatedAt time.Time) error {
	data, err := json.Marshal(nonNil(frontier))
	if err != nil {
		return fmt.Errorf("encode frontier: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return putMeta(ctx, tx, map[string]string{
			metaVersion:   strconv.Itoa(checkpoint.Version),
			metaFrontier:  string(data),
			metaUpdatedAt: formatTime(updatedAt),
		})
	})
}

// Reset deletes all rows.
func (s *CheckpointStore) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM completed`); err != nil {
			return fmt.Errorf("clear completed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
			return fmt.Errorf("clear meta: %w", err)
		}
		return nil
	})
}

// Close closes the database connection.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func (s *CheckpointStore) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, rollback(tx))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func putMeta(ctx context.Context, tx *sql.Tx, values map[string]string) error {
	for name, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meta (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
		if err != nil {
			return fmt.Errorf("upsert meta %s: %w", name, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(items []crawler.WorkItem) []crawler.WorkItem {
	if items == nil {
		return []crawler.WorkItem{}
	}
	return items
}
