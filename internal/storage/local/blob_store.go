package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// BlobStore archives raw HTML of pages that failed to parse.
type BlobStore struct {
	baseDir string
	hasher  crawler.Hasher
}

// New creates a local archive rooted at cfg.BaseDir.
func New(cfg Config, hasher crawler.Hasher) (*BlobStore, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if err := ensureDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	return &BlobStore{baseDir: cfg.BaseDir, hasher: hasher}, nil
}

// Save writes body under a name derived from pageURL and its content digest,
// and returns a file:// URI.
func (s *BlobStore) Save(_ context.Context, pageURL string, body []byte) (string, error) {
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page body: %w", err)
	}
	fullPath, err := within(s.baseDir, crawler.SafeBasename(pageURL, digest)+".html")
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(fullPath, body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}
