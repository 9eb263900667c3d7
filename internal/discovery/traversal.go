// Package discovery walks the catalog tree breadth-first by level: the site
// index, categories, subcategories, listing pages, then model pages. Each URL
// is visited at most once per run.
package discovery

import (
	"sync"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Traversal is a level-ordered frontier. Items are served from the shallowest
// non-empty level, FIFO within a level, and deduplicated by normalized URL for
// the lifetime of the Traversal.
type Traversal struct {
	mu     sync.Mutex
	levels [][]crawler.WorkItem
	seen   map[string]struct{}
}

// NewTraversal returns an empty Traversal.
func NewTraversal() *Traversal {
	return &Traversal{
		levels: make([][]crawler.WorkItem, len(crawler.Kinds)),
		seen:   make(map[string]struct{}),
	}
}

// Push enqueues items not seen before and returns how many were accepted.
// Items with an unknown kind or empty URL are ignored.
func (t *Traversal) Push(items ...crawler.WorkItem) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	accepted := 0
	for _, item := range items {
		level := item.Kind.Level()
		if level < 0 || item.URL == "" {
			continue
		}
		key := item.Key()
		if _, ok := t.seen[key]; ok {
			continue
		}
		t.seen[key] = struct{}{}
		t.levels[level] = append(t.levels[level], item)
		accepted++
	}
	return accepted
}

// Next pops the next item.
func (t *Traversal) Next() (crawler.WorkItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.levels {
		if len(q) == 0 {
			continue
		}
		item := q[0]
		q[0] = crawler.WorkItem{}
		t.levels[i] = q[1:]
		return item, true
	}
	return crawler.WorkItem{}, false
}

// Len returns the number of queued items.
func (t *Traversal) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.levels {
		n += len(q)
	}
	return n
}

// Snapshot copies the queued items in service order.
func (t *Traversal) Snapshot() []crawler.WorkItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []crawler.WorkItem
	for _, q := range t.levels {
		out = append(out, q...)
	}
	return out
}

// Seen reports whether key has ever been pushed.
func (t *Traversal) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[crawler.URLKey(key)]
	return ok
}

// SeenCount returns how many distinct items were ever accepted.
func (t *Traversal) SeenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
