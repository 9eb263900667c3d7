package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// CheckpointFileName is the snapshot file inside the checkpoint directory.
const CheckpointFileName = "checkpoint.json"

// snapshot is the on-disk layout. Completed entries are a key-sorted list so
// the file diffs cleanly between runs.
type snapshot struct {
	Version   int                         `json:"version"`
	Completed []checkpoint.CompletedEntry `json:"completed"`
	Frontier  []crawler.WorkItem          `json:"frontier"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// CheckpointFile is a checkpoint.Backend that rewrites a JSON snapshot on
// every change.
type CheckpointFile struct {
	mu    sync.Mutex
	path  string
	state checkpoint.State
}

// NewCheckpointFile stores the snapshot under cfg.BaseDir.
func NewCheckpointFile(cfg Config) (*CheckpointFile, error) {
	if err := ensureDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	return &CheckpointFile{
		path:  filepath.Join(cfg.BaseDir, CheckpointFileName),
		state: checkpoint.NewState(),
	}, nil
}

// Path returns the snapshot location.
func (f *CheckpointFile) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file is a fresh state; an undecodable one
// wraps crawler.ErrCheckpointCorrupt.
func (f *CheckpointFile) Load(context.Context) (checkpoint.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// #nosec G304 -- path is fixed at construction.
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.state = checkpoint.NewState()
		return f.state.Clone(), nil
	}
	if err != nil {
		return checkpoint.State{}, fmt.Errorf("read checkpoint %s: %w", f.path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return checkpoint.State{}, fmt.Errorf("%w: decode %s: %v", crawler.ErrCheckpointCorrupt, f.path, err)
	}
	state := checkpoint.State{
		Version:   snap.Version,
		Completed: make(map[string]checkpoint.CompletedEntry, len(snap.Completed)),
		Frontier:  snap.Frontier,
		UpdatedAt: snap.UpdatedAt,
	}
	for _, entry := range snap.Completed {
		if entry.Key == "" {
			return checkpoint.State{}, fmt.Errorf("%w: completed entry without key", crawler.ErrCheckpointCorrupt)
		}
		state.Completed[entry.Key] = entry
	}
	f.state = state
	return state.Clone(), nil
}

// MarkDone adds entry and rewrites the snapshot.
func (f *CheckpointFile) MarkDone(_ context.Context, entry checkpoint.CompletedEntry, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.state.Clone()
	next.Completed[entry.Key] = entry
	next.UpdatedAt = updatedAt
	if err := f.write(next); err != nil {
		return err
	}
	f.state = next
	return nil
}

// SaveFrontier replaces the frontier and rewrites the snapshot.
func (f *CheckpointFile) SaveFrontier(_ context.Context, frontier []crawler.WorkItem, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.state.Clone()
	next.Frontier = slices.Clone(frontier)
	next.UpdatedAt = updatedAt
	if err := f.write(next); err != nil {
		return err
	}
	f.state = next
	return nil
}

// Reset deletes the snapshot.
func (f *CheckpointFile) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", f.path, err)
	}
	f.state = checkpoint.NewState()
	return nil
}

// Close is a no-op; every change is already on disk.
func (*CheckpointFile) Close() error { return nil }

func (f *CheckpointFile) write(state checkpoint.State) error {
	snap := snapshot{
		Version:   state.Version,
		Completed: state.SortedEntries(),
		Frontier:  state.Frontier,
		UpdatedAt: state.UpdatedAt,
	}
	if snap.Frontier == nil {
		snap.Frontier = []crawler.WorkItem{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", f.path, err)
	}
	return nil
}
