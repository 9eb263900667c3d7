package htmlextract

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const (
	exploreSegment  = "explore"
	gallerySuffix   = "-wallpapers"
	minReviewLength = 100
	maxReviewLength = 50000
	maxLabelLength  = 100
)

var (
	yearPrefix   = regexp.MustCompile(`^(\d{4})-(.+)$`)
	yearInText   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	priceRe      = regexp.MustCompile(`\$[\d,]+`)
	reviewAttr   = regexp.MustCompile(`(?i)review|expert`)
	specAttr     = regexp.MustCompile(`(?i)spec|trim`)
	paginateAttr = regexp.MustCompile(`(?i)paginat`)
)

// Extractor implements crawler.PageExtractor.
type Extractor struct{}

var _ crawler.PageExtractor = (*Extractor)(nil)

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

func load(body []byte, pageURL, page string) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &crawler.ParseError{URL: pageURL, Page: page, Reason: "empty body"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &crawler.ParseError{URL: pageURL, Page: page, Reason: err.Error()}
	}
	return doc, nil
}

// anchors visits every resolvable link on the page in document order.
func anchors(doc *goquery.Document, pageURL string, fn func(abs string, sel *goquery.Selection)) int {
	count := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := crawler.ResolveURL(pageURL, href)
		if !ok {
			return
		}
		count++
		fn(abs, sel)
	})
	return count
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// slugLabel turns a URL slug like "crossover-suv" into "Crossover Suv".
func slugLabel(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sameHost(a, b string) bool {
	return hostOf(a) == hostOf(b)
}

func hostOf(raw string) string {
	key := crawler.URLKey(raw)
	rest, ok := strings.CutPrefix(key, "https://")
	if !ok {
		rest, _ = strings.CutPrefix(key, "http://")
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

// modelPath splits a model page URL (/make/YYYY-model) into its parts.
func modelPath(raw string) (makeSlug, year, model string, ok bool) {
	segs := crawler.PathSegments(raw)
	if len(segs) != 2 || segs[0] == exploreSegment {
		return "", "", "", false
	}
	if strings.Contains(segs[1], gallerySuffix) {
		return "", "", "", false
	}
	m := yearPrefix.FindStringSubmatch(segs[1])
	if m == nil {
		return "", "", "", false
	}
	return segs[0], m[1], m[2], true
}

func appendUnique(dst []string, seen map[string]struct{}, vals ...string) []string {
	for _, v := range vals {
		key := crawler.URLKey(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func sortedDesc(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}
