package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const makePrefix = "make="

// RecordStore keeps one JSON document per model at make=<make>/<model>.json.
type RecordStore struct {
	baseDir string
}

// NewRecordStore creates a record store rooted at cfg.BaseDir.
func NewRecordStore(cfg Config) (*RecordStore, error) {
	if err := ensureDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	return &RecordStore{baseDir: cfg.BaseDir}, nil
}

func (s *RecordStore) path(key crawler.ModelKey) (string, error) {
	if !key.Valid() {
		return "", fmt.Errorf("invalid record key %q", key)
	}
	return within(s.baseDir, filepath.FromSlash(key.Path()))
}

// Read loads the record for key. It returns nil, nil when none exists.
func (s *RecordStore) Read(_ context.Context, key crawler.ModelKey) (*crawler.ModelRecord, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the store's base directory.
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	var rec crawler.ModelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

// Write atomically replaces the record.
func (s *RecordStore) Write(_ context.Context, record crawler.ModelRecord) error {
	p, err := s.path(record.Key())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.Key(), err)
	}
	if err := writeFileAtomic(p, data); err != nil {
		return fmt.Errorf("write record %s: %w", record.Key(), err)
	}
	return nil
}

// Walk calls fn for every stored record in (make, model) order.
func (s *RecordStore) Walk(ctx context.Context, fn func(crawler.ModelRecord) error) error {
	var keys []crawler.ModelKey
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}
		dir := filepath.Base(filepath.Dir(p))
		if !strings.HasPrefix(dir, makePrefix) {
			return nil
		}
		keys = append(keys, crawler.ModelKey{
			Make:  strings.TrimPrefix(dir, makePrefix),
			Model: strings.TrimSuffix(filepath.Base(p), ".json"),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk records: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Make != keys[j].Make {
			return keys[i].Make < keys[j].Make
		}
		return keys[i].Model < keys[j].Model
	})
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("walk records: %w", err)
		}
		rec, err := s.Read(ctx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := fn(*rec); err != nil {
			return err
		}
	}
	return nil
}
