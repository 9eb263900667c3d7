package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// process runs item through its kind's pipeline. done is false when the item
// failed and was recorded as such; err is set only for run-fatal conditions.
func (o *Orchestrator) process(ctx context.Context, item crawler.WorkItem) (children []crawler.WorkItem, done bool, err error) {
	o.logger.Debug("item fetching",
		zap.String("url", item.URL),
		zap.String("kind", string(item.Kind)),
		zap.String("state", "fetching"),
	)
	res, err := o.deps.Fetcher.Fetch(ctx, item.URL)
	if err != nil {
		if item.Kind == crawler.KindRoot {
			return nil, false, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
		}
		o.fail(item, ReasonFetch, err)
		return nil, false, nil
	}

	switch item.Kind {
	case crawler.KindRoot:
		children, err = o.expandRoot(ctx, item, res.Body)
		if err != nil {
			return nil, false, err
		}
	case crawler.KindCategory:
		children = o.expandCategory(ctx, item, res.Body)
	case crawler.KindSubcategory, crawler.KindListing:
		children = o.expandListing(ctx, item, res.Body)
	case crawler.KindModel:
		done, err := o.processModel(ctx, item, res.Body)
		return nil, done, err
	default:
		o.fail(item, ReasonParse, fmt.Errorf("unknown kind %q", item.Kind))
		return nil, false, nil
	}

	if err := o.markDone(ctx, item, children); err != nil {
		return nil, false, err
	}
	return children, true, nil
}

func (o *Orchestrator) expandRoot(ctx context.Context, item crawler.WorkItem, body []byte) ([]crawler.WorkItem, error) {
	links, err := o.deps.Extractor.ParseCategories(body, item.URL)
	if err != nil {
		o.archive(ctx, item, body)
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	children := make([]crawler.WorkItem, 0, len(links))
	for _, l := range links {
		child := item.Child(crawler.KindCategory, l.URL, l.Label)
		child.Category = l.Label
		children = append(children, child)
	}
	return children, nil
}

// expandCategory returns subcategory items, or treats the page as a listing
// when it has no subcategory navigation.
func (o *Orchestrator) expandCategory(ctx context.Context, item crawler.WorkItem, body []byte) []crawler.WorkItem {
	links, err := o.deps.Extractor.ParseSubcategories(body, item.URL)
	if err != nil || len(links) == 0 {
		o.logger.Debug("category has no subcategories, reading as listing",
			zap.String("url", item.URL),
			zap.NamedError("parse_error", err),
		)
		return o.expandListing(ctx, item, body)
	}
	children := make([]crawler.WorkItem, 0, len(links))
	for _, l := range links {
		child := item.Child(crawler.KindSubcategory, l.URL, l.Label)
		child.Subcategory = l.Label
		children = append(children, child)
	}
	return children
}

func (o *Orchestrator) expandListing(ctx context.Context, item crawler.WorkItem, body []byte) []crawler.WorkItem {
	page, err := o.deps.Extractor.ParseListing(body, item.URL)
	if err != nil {
		o.parseWarning(ctx, item, body, err)
		return nil
	}
	children := make([]crawler.WorkItem, 0, len(page.Entries)+len(page.Next))
	for _, e := range page.Entries {
		children = append(children, item.Child(crawler.KindModel, e.ModelURL, e.Name))
	}
	for _, next := range page.Next {
		children = append(children, item.Child(crawler.KindListing, next, item.Label))
	}
	return children
}

// parseWarning archives a navigation page that yielded nothing. The item is
// still completed, with no children.
func (o *Orchestrator) parseWarning(ctx context.Context, item crawler.WorkItem, body []byte, err error) {
	o.archive(ctx, item, body)
	o.logger.Warn("navigation page yielded no children",
		zap.String("url", item.URL),
		zap.String("kind", string(item.Kind)),
		zap.Error(err),
	)
}
