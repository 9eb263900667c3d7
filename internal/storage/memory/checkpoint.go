package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// CheckpointBackend is a checkpoint.Backend that never touches disk. Errors
// can be injected to exercise persistence failures.
type CheckpointBackend struct {
	mu          sync.Mutex
	state       checkpoint.State
	markErr     error
	frontierErr error
	loadErr     error
	markCalls   int
	saves       int
}

// NewCheckpointBackend returns an empty backend.
func NewCheckpointBackend() *CheckpointBackend {
	return &CheckpointBackend{state: checkpoint.NewState()}
}

// NewCheckpointBackendWithState seeds the backend with state as-is, without
// validation, so corrupt snapshots can be simulated.
func NewCheckpointBackendWithState(state checkpoint.State) *CheckpointBackend {
	return &CheckpointBackend{state: state.Clone()}
}

// Load returns a copy of the stored state.
func (b *CheckpointBackend) Load(context.Context) (checkpoint.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return checkpoint.State{}, b.loadErr
	}
	return b.state.Clone(), nil
}

// MarkDone records entry.
func (b *CheckpointBackend) MarkDone(_ context.Context, entry checkpoint.CompletedEntry, updatedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markCalls++
	if b.markErr != nil {
		return b.markErr
	}
	if b.state.Completed == nil {
		b.state.Completed = map[string]checkpoint.CompletedEntry{}
	}
	entry.Children = slices.Clone(entry.Children)
	b.state.Completed[entry.Key] = entry
	b.state.UpdatedAt = updatedAt
	return nil
}

// SaveFrontier replaces the stored frontier.
func (b *CheckpointBackend) SaveFrontier(_ context.Context, frontier []crawler.WorkItem, updatedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frontierErr != nil {
		return b.frontierErr
	}
	b.state.Frontier = slices.Clone(frontier)
	b.state.UpdatedAt = updatedAt
	b.saves++
	return nil
}

// Reset clears all state.
func (b *CheckpointBackend) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = checkpoint.NewState()
	return nil
}

// Close is a no-op.
func (*CheckpointBackend) Close() error { return nil }

// FailMarkDone makes subsequent MarkDone calls return err. Nil clears it.
func (b *CheckpointBackend) FailMarkDone(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markErr = err
}

// FailSaveFrontier makes subsequent SaveFrontier calls return err.
func (b *CheckpointBackend) FailSaveFrontier(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frontierErr = err
}

// FailLoad makes Load return err.
func (b *CheckpointBackend) FailLoad(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadErr = err
}

// Snapshot returns the persisted state.
func (b *CheckpointBackend) Snapshot() checkpoint.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

// MarkCalls reports how many MarkDone calls were attempted.
func (b *CheckpointBackend) MarkCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markCalls
}

// FrontierSaves reports how many frontier snapshots were stored.
func (b *CheckpointBackend) FrontierSaves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
