// Package memory keeps records, archived pages, and checkpoint state in
// process memory. It backs tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// BlobStore keeps archived page bodies in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Save stores a copy of body under the page's normalized URL.
func (s *BlobStore) Save(_ context.Context, pageURL string, body []byte) (string, error) {
	key := crawler.URLKey(pageURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), body...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns the archived body for pageURL.
func (s *BlobStore) Get(pageURL string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[crawler.URLKey(pageURL)]
	return append([]byte(nil), body...), ok
}

// Len reports how many pages were archived.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
