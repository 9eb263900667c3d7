package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// RecordStore keeps model records keyed by (make, model).
type RecordStore struct {
	mu      sync.RWMutex
	records map[crawler.ModelKey]crawler.ModelRecord
	writes  int
	failOn  map[crawler.ModelKey]error
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[crawler.ModelKey]crawler.ModelRecord),
		failOn:  make(map[crawler.ModelKey]error),
	}
}

// Read returns a copy of the stored record, or nil when none exists.
func (s *RecordStore) Read(_ context.Context, key crawler.ModelKey) (*crawler.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

// Write replaces the stored record.
func (s *RecordStore) Write(_ context.Context, record crawler.ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[record.Key()]; ok {
		return err
	}
	s.records[record.Key()] = record.Clone()
	s.writes++
	return nil
}

// FailWrites makes every Write for key return err.
func (s *RecordStore) FailWrites(key crawler.ModelKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[key] = err
}

// Keys lists stored record keys.
func (s *RecordStore) Keys() []crawler.ModelKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ModelKey, 0, len(s.records))
	for k := range s.records {
		out = append(out, k)
	}
	return out
}

// Writes reports how many writes succeeded.
func (s *RecordStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
