// Package checkpoint records which work items finished their full pipeline so
// that an interrupted crawl resumes without refetching completed pages. State
// changes are persisted through a Backend before they become visible.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Version is the snapshot format understood by this package.
const Version = 1

// CompletedEntry records one finished work item. Children are kept for
// non-terminal items so that resume re-derives the tree without refetching.
type CompletedEntry struct {
	Key         string             `json:"key"`
	Kind        crawler.Kind       `json:"kind"`
	URL         string             `json:"url"`
	CompletedAt time.Time          `json:"completed_at"`
	Children    []crawler.WorkItem `json:"children,omitempty"`
}

// State is the full checkpoint content.
type State struct {
	Version   int                       `json:"version"`
	Completed map[string]CompletedEntry `json:"completed"`
	Frontier  []crawler.WorkItem        `json:"frontier"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// NewState returns an empty state at the current Version.
func NewState() State {
	return State{Version: Version, Completed: map[string]CompletedEntry{}}
}

// Validate reports ErrCheckpointCorrupt for states that cannot be trusted.
func (s State) Validate() error {
	if s.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", crawler.ErrCheckpointCorrupt, s.Version)
	}
	for key, entry := range s.Completed {
		if key == "" || entry.Key == "" {
			return fmt.Errorf("%w: completed entry without key", crawler.ErrCheckpointCorrupt)
		}
		if key != entry.Key {
			return fmt.Errorf("%w: entry %q filed under %q", crawler.ErrCheckpointCorrupt, entry.Key, key)
		}
		if entry.Kind.Level() < 0 {
			return fmt.Errorf("%w: entry %q has unknown kind %q", crawler.ErrCheckpointCorrupt, key, entry.Kind)
		}
	}
	return nil
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := State{
		Version:   s.Version,
		Completed: make(map[string]CompletedEntry, len(s.Completed)),
		Frontier:  slices.Clone(s.Frontier),
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Completed {
		v.Children = slices.Clone(v.Children)
		out.Completed[k] = v
	}
	return out
}

// SortedEntries returns completed entries ordered by key.
func (s State) SortedEntries() []CompletedEntry {
	keys := slices.Sorted(maps.Keys(s.Completed))
	out := make([]CompletedEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.Completed[k])
	}
	return out
}

// Backend persists checkpoint state. MarkDone and SaveFrontier must be
// durable when they return nil.
type Backend interface {
	Load(ctx context.Context) (State, error)
	MarkDone(ctx context.Context, entry CompletedEntry, updatedAt time.Time) error
	SaveFrontier(ctx context.Context, frontier []crawler.WorkItem, updatedAt time.Time) error
	Reset(ctx context.Context) error
	Close() error
}

// Stats summarizes a checkpoint for status reporting.
type Stats struct {
	Completed int                  `json:"completed"`
	ByKind    map[crawler.Kind]int `json:"by_kind"`
	Frontier  int                  `json:"frontier"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store is the in-process view of a checkpoint. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	clock   crawler.Clock
	state   State
}

// Open loads state from backend. A corrupt snapshot fails with an error
// wrapping crawler.ErrCheckpointCorrupt.
func Open(ctx context.Context, backend Backend, clock crawler.Clock) (*Store, error) {
	if backend == nil {
		return nil, errors.New("checkpoint backend is required")
	}
	if clock == nil {
		return nil, errors.New("checkpoint clock is required")
	}
	state, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if state.Completed == nil {
		state.Completed = map[string]CompletedEntry{}
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &Store{backend: backend, clock: clock, state: state}, nil
}

// IsDone reports whether key finished its pipeline in any prior or current run.
func (s *Store) IsDone(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.Completed[crawler.URLKey(key)]
	return ok
}

// Children returns the cached children of a completed item.
func (s *Store) Children(key string) ([]crawler.WorkItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.state.Completed[crawler.URLKey(key)]
	if !ok {
		return nil, false
	}
	return slices.Clone(entry.Children), true
}

// MarkDone durably records item as complete. The in-memory view changes only
// after the backend accepted the write.
func (s *Store) MarkDone(ctx context.Context, item crawler.WorkItem, children []crawler.WorkItem) error {
	now := s.clock.Now().UTC()
	entry := CompletedEntry{
		Key:         item.Key(),
		Kind:        item.Kind,
		URL:         item.URL,
		CompletedAt: now,
	}
	if !item.Kind.Terminal() {
		entry.Children = slices.Clone(children)
	}
	if entry.Key == "" {
		return errors.New("mark done: item has no key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.MarkDone(ctx, entry, now); err != nil {
		return fmt.Errorf("persist completion of %s: %w", entry.Key, err)
	}
	s.state.Completed[entry.Key] = entry
	s.state.UpdatedAt = now
	return nil
}

// SaveFrontier replaces the stored frontier.
func (s *Store) SaveFrontier(ctx context.Context, frontier []crawler.WorkItem) error {
	now := s.clock.Now().UTC()
	frontier = slices.Clone(frontier)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.SaveFrontier(ctx, frontier, now); err != nil {
		return fmt.Errorf("persist frontier: %w", err)
	}
	s.state.Frontier = frontier
	s.state.UpdatedAt = now
	return nil
}

// Reset discards all checkpoint state.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Reset(ctx); err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	s.state = NewState()
	return nil
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Stats summarizes the current state.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Completed: len(s.state.Completed),
		ByKind:    map[crawler.Kind]int{},
		Frontier:  len(s.state.Frontier),
		UpdatedAt: s.state.UpdatedAt,
	}
	for _, e := range s.state.Completed {
		st.ByKind[e.Kind]++
	}
	return st
}

// Close releases the backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close checkpoint backend: %w", err)
	}
	return nil
}
