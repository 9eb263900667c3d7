// Package merge combines a freshly extracted model record with the stored one.
// Merges only add: years, images, trims, and spec values present in the stored
// record survive any incoming observation.
package merge

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// ReviewPolicy decides which expert review wins when both sides have one.
type ReviewPolicy string

// Review policies. An empty review never replaces a non-empty one.
const (
	// ReviewIncoming prefers the newer observation.
	ReviewIncoming ReviewPolicy = "incoming"
	// ReviewLonger keeps the longer text; ties keep the stored one.
	ReviewLonger ReviewPolicy = "longer"
	// ReviewExisting keeps the first review ever stored.
	ReviewExisting ReviewPolicy = "existing"
)

// ParseReviewPolicy validates a configured policy name. Empty means incoming.
func ParseReviewPolicy(raw string) (ReviewPolicy, error) {
	switch p := ReviewPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return ReviewIncoming, nil
	case ReviewIncoming, ReviewLonger, ReviewExisting:
		return p, nil
	default:
		return "", fmt.Errorf("unknown review policy %q", raw)
	}
}

// Merger merges model records.
type Merger struct {
	review ReviewPolicy
}

// Option configures a Merger.
type Option func(*Merger)

// WithReviewPolicy sets the expert review tie-break.
func WithReviewPolicy(p ReviewPolicy) Option {
	return func(m *Merger) {
		if p != "" {
			m.review = p
		}
	}
}

// New returns a Merger using ReviewIncoming unless configured otherwise.
func New(opts ...Option) *Merger {
	m := &Merger{review: ReviewIncoming}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReviewPolicy reports the configured policy.
func (m *Merger) ReviewPolicy() ReviewPolicy {
	return m.review
}

// Merge returns the combination of existing and incoming. Neither input is
// modified. With no existing record the result is a copy of incoming.
func (m *Merger) Merge(existing *crawler.ModelRecord, incoming crawler.ModelRecord) crawler.ModelRecord {
	if existing == nil {
		return incoming.Clone()
	}
	out := crawler.ModelRecord{
		Make:  existing.Make,
		Model: existing.Model,
	}
	if existing.Years == nil && incoming.Years == nil {
		return out
	}
	out.Years = make(map[string]crawler.YearRecord, len(existing.Years)+len(incoming.Years))
	for year, yr := range existing.Years {
		out.Years[year] = yr.Clone()
	}
	for year, in := range incoming.Years {
		prior, ok := out.Years[year]
		if !ok {
			out.Years[year] = in.Clone()
			continue
		}
		out.Years[year] = m.mergeYear(prior, in)
	}
	return out
}

func (m *Merger) mergeYear(existing, incoming crawler.YearRecord) crawler.YearRecord {
	return crawler.YearRecord{
		MainImages:   mergeImages(existing.MainImages, incoming.MainImages),
		ExpertReview: m.pickReview(existing.ExpertReview, incoming.ExpertReview),
		Trims:        mergeTrims(existing.Trims, incoming.Trims),
		SourceURL:    preferIncoming(existing.SourceURL, incoming.SourceURL),
		Category:     preferIncoming(existing.Category, incoming.Category),
		Subcategory:  preferIncoming(existing.Subcategory, incoming.Subcategory),
	}
}

func (m *Merger) pickReview(existing, incoming string) string {
	switch {
	case strings.TrimSpace(incoming) == "":
		return existing
	case strings.TrimSpace(existing) == "":
		return incoming
	}
	switch m.review {
	case ReviewExisting:
		return existing
	case ReviewLonger:
		if utf8.RuneCountInString(incoming) > utf8.RuneCountInString(existing) {
			return incoming
		}
		return existing
	default:
		return incoming
	}
}

func preferIncoming(existing, incoming string) string {
	if strings.TrimSpace(incoming) != "" {
		return incoming
	}
	return existing
}

// mergeImages keeps the stored list as-is and appends incoming URLs it lacks.
// When new URLs join and every URL carries a WIDTHxHEIGHT token the result is
// re-sorted largest first; otherwise discovery order is kept.
func mergeImages(existing, incoming []string) []string {
	out := union(existing, incoming)
	if len(out) == len(existing) || len(out) < 2 {
		return out
	}
	pixels := make(map[string]int, len(out))
	for _, u := range out {
		w, h, ok := crawler.ImageResolution(u)
		if !ok {
			return out
		}
		pixels[u] = w * h
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return pixels[b] - pixels[a]
	})
	return out
}

// mergeTrims merges by trim name. Stored trims keep their position, repeats
// included; the nth incoming trim of a name merges into the nth stored trim of
// that name. Unmatched incoming trims are appended in incoming order.
func mergeTrims(existing, incoming []crawler.TrimRecord) []crawler.TrimRecord {
	if existing == nil && incoming == nil {
		return nil
	}
	out := make([]crawler.TrimRecord, 0, len(existing)+len(incoming))
	positions := make(map[string][]int, len(existing)+len(incoming))
	for _, t := range existing {
		positions[t.Name] = append(positions[t.Name], len(out))
		out = append(out, t.Clone())
	}
	seen := make(map[string]int, len(incoming))
	for _, t := range incoming {
		n := seen[t.Name]
		seen[t.Name] = n + 1
		if n < len(positions[t.Name]) {
			i := positions[t.Name][n]
			out[i] = mergeTrim(out[i], t)
			continue
		}
		positions[t.Name] = append(positions[t.Name], len(out))
		out = append(out, t.Clone())
	}
	return out
}

func mergeTrim(existing, incoming crawler.TrimRecord) crawler.TrimRecord {
	out := existing.Clone()
	if incoming.Price != nil && strings.TrimSpace(*incoming.Price) != "" {
		p := *incoming.Price
		out.Price = &p
	}
	if len(incoming.Specifications) == 0 {
		return out
	}
	if out.Specifications == nil {
		out.Specifications = make(map[string][]string, len(incoming.Specifications))
	}
	for category, values := range incoming.Specifications {
		out.Specifications[category] = union(out.Specifications[category], values)
	}
	return out
}

// union returns a copy of a followed by the members of b that a lacks. Repeats
// already in a are kept; repeats within b are added once. Nil only when both
// inputs are nil.
func union(a, b []string) []string {
	if a == nil && b == nil {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
