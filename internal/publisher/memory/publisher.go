// Package memory contains an in-memory record notifier for tests and runs
// without a configured topic.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []crawler.RecordEvent
	err    error
}

var _ crawler.Notifier = (*Publisher)(nil)

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event, or returns the injected error.
func (p *Publisher) Publish(_ context.Context, event crawler.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	event.Years = append([]string(nil), event.Years...)
	p.events = append(p.events, event)
	return nil
}

// FailWith makes every later Publish return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Events returns the recorded events.
func (p *Publisher) Events() []crawler.RecordEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.RecordEvent, len(p.events))
	copy(out, p.events)
	return out
}
