package discovery

import (
	"context"
	"fmt"
	"iter"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Expander processes one work item and returns the children it discovered.
// A returned error ends the traversal.
type Expander interface {
	Expand(ctx context.Context, item crawler.WorkItem) ([]crawler.WorkItem, error)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, item crawler.WorkItem) ([]crawler.WorkItem, error)

// Expand implements Expander.
func (f ExpanderFunc) Expand(ctx context.Context, item crawler.WorkItem) ([]crawler.WorkItem, error) {
	return f(ctx, item)
}

type options struct {
	frontierEvery int
	onFrontier    func([]crawler.WorkItem)
	traversal     *Traversal
}

// Option customizes Discover.
type Option func(*options)

// WithFrontierHook calls fn with the queued frontier every n expanded items
// and once more when the traversal stops for any reason.
func WithFrontierHook(n int, fn func([]crawler.WorkItem)) Option {
	return func(o *options) {
		o.frontierEvery = n
		o.onFrontier = fn
	}
}

// WithTraversal runs Discover over a caller-owned Traversal so the caller can
// inspect progress (Len, SeenCount) while iterating.
func WithTraversal(t *Traversal) Option {
	return func(o *options) {
		if t != nil {
			o.traversal = t
		}
	}
}

// Discover lazily expands the tree below roots. Each yielded item has already
// been expanded and its children queued. ctx is checked before every item;
// when it is done the sequence yields ctx's error and stops. An Expand error
// is yielded with the item that caused it and also stops the sequence.
func Discover(ctx context.Context, exp Expander, roots []crawler.WorkItem, opts ...Option) iter.Seq2[crawler.WorkItem, error] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return func(yield func(crawler.WorkItem, error) bool) {
		t := o.traversal
		if t == nil {
			t = NewTraversal()
		}
		t.Push(roots...)

		expanded := 0
		if o.onFrontier != nil {
			defer func() { o.onFrontier(t.Snapshot()) }()
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(crawler.WorkItem{}, fmt.Errorf("discovery stopped: %w", err))
				return
			}
			item, ok := t.Next()
			if !ok {
				return
			}
			children, err := exp.Expand(ctx, item)
			if err != nil {
				yield(item, err)
				return
			}
			t.Push(children...)
			expanded++
			if o.onFrontier != nil && o.frontierEvery > 0 && expanded%o.frontierEvery == 0 {
				o.onFrontier(t.Snapshot())
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Pending runs discovery to completion and returns every discovered item for
// which isDone is false, in traversal order. exp is expected to serve cached
// children for completed items so that nothing is refetched.
func Pending(
	ctx context.Context,
	exp Expander,
	isDone func(key string) bool,
	roots ...crawler.WorkItem,
) ([]crawler.WorkItem, error) {
	var pending []crawler.WorkItem
	for item, err := range Discover(ctx, exp, roots) {
		if err != nil {
			return pending, err
		}
		if !isDone(item.Key()) {
			pending = append(pending, item)
		}
	}
	return pending, nil
}
