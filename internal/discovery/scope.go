package discovery

import (
	"strings"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Scope restricts a crawl to matching categories and subcategories. Matching
// is a case-insensitive substring test against the normalized link label or
// the last URL path segment.
type Scope struct {
	Category    string
	Subcategory string
}

// Empty reports whether the scope admits everything.
func (s Scope) Empty() bool {
	return strings.TrimSpace(s.Category) == "" && strings.TrimSpace(s.Subcategory) == ""
}

// Admits reports whether item passes the scope. Only category and subcategory
// items are ever rejected.
func (s Scope) Admits(item crawler.WorkItem) bool {
	switch item.Kind {
	case crawler.KindCategory:
		return matches(s.Category, item)
	case crawler.KindSubcategory:
		return matches(s.Subcategory, item)
	default:
		return true
	}
}

// Filter returns the admitted items, preserving order.
func (s Scope) Filter(items []crawler.WorkItem) []crawler.WorkItem {
	if s.Empty() {
		return items
	}
	out := make([]crawler.WorkItem, 0, len(items))
	for _, item := range items {
		if s.Admits(item) {
			out = append(out, item)
		}
	}
	return out
}

func matches(want string, item crawler.WorkItem) bool {
	want = crawler.NormalizeName(want)
	if want == "" {
		return true
	}
	if strings.Contains(crawler.NormalizeName(item.Label), want) {
		return true
	}
	segs := crawler.PathSegments(item.URL)
	if len(segs) == 0 {
		return false
	}
	return strings.Contains(crawler.NormalizeName(segs[len(segs)-1]), want)
}
