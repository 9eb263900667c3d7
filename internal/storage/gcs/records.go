package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Read loads the record for key, or nil when the object does not exist.
func (s *BlobStore) Read(ctx context.Context, key crawler.ModelKey) (*crawler.ModelRecord, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("invalid record key %q", key)
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.objectName(key.Path())).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open record %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	var rec crawler.ModelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

// Write uploads the record, replacing any previous version.
func (s *BlobStore) Write(ctx context.Context, record crawler.ModelRecord) error {
	key := record.Key()
	if !key.Valid() {
		return fmt.Errorf("invalid record key %q", key)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	if _, err := s.putObject(ctx, s.objectName(key.Path()), "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}
