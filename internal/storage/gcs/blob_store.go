// Package gcs keeps model records and archived pages in a Google Cloud
// Storage bucket, using the same make=<make>/<model>.json layout as the local
// store.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const archiveDir = "errors"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// BlobStore writes objects to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
	hasher crawler.Hasher
}

// New creates a GCS-backed store. hasher names archived pages.
func New(client *storage.Client, cfg Config, hasher crawler.Hasher) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		hasher: hasher,
	}, nil
}

func (s *BlobStore) objectName(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

// putObject uploads data and returns a gs:// URI. GCS object writes only
// become visible when the writer closes successfully.
func (s *BlobStore) putObject(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Save archives a page body under errors/ and returns its gs:// URI.
func (s *BlobStore) Save(ctx context.Context, pageURL string, body []byte) (string, error) {
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page body: %w", err)
	}
	name := s.objectName(path.Join(archiveDir, crawler.SafeBasename(pageURL, digest)+".html"))
	return s.putObject(ctx, name, "text/html; charset=utf-8", bytes.NewReader(body))
}
