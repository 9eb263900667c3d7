package htmlextract

import (
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

var nextKeywords = []string{"show more", "load more", "next"}

// ParseCategories returns the /explore/{category} links on the site index.
func (e *Extractor) ParseCategories(body []byte, pageURL string) ([]crawler.Link, error) {
	doc, err := load(body, pageURL, "categories")
	if err != nil {
		return nil, err
	}
	var links []crawler.Link
	seen := map[string]struct{}{}
	anchors(doc, pageURL, func(abs string, sel *goquery.Selection) {
		segs := crawler.PathSegments(abs)
		if len(segs) != 2 || segs[0] != exploreSegment || !sameHost(abs, pageURL) {
			return
		}
		key := crawler.URLKey(abs)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		label := text(sel)
		if label == "" {
			label = slugLabel(segs[1])
		}
		links = append(links, crawler.Link{URL: abs, Label: label})
	})
	if len(links) == 0 {
		return nil, &crawler.ParseError{URL: pageURL, Page: "categories", Reason: "no category links"}
	}
	return links, nil
}

// ParseSubcategories returns /explore/{category}/{sub} links. A category page
// without subcategories yields an empty slice; a page without any links is a
// ParseError.
func (e *Extractor) ParseSubcategories(body []byte, pageURL string) ([]crawler.Link, error) {
	doc, err := load(body, pageURL, "subcategories")
	if err != nil {
		return nil, err
	}
	pageSegs := crawler.PathSegments(pageURL)
	category := ""
	if len(pageSegs) >= 2 && pageSegs[0] == exploreSegment {
		category = pageSegs[1]
	}

	var links []crawler.Link
	seen := map[string]struct{}{}
	add := func(abs, label string) {
		key := crawler.URLKey(abs)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, crawler.Link{URL: abs, Label: label})
	}

	total := anchors(doc, pageURL, func(abs string, sel *goquery.Selection) {
		segs := crawler.PathSegments(abs)
		if len(segs) != 3 || segs[0] != exploreSegment || !sameHost(abs, pageURL) {
			return
		}
		if category != "" && segs[1] != category {
			return
		}
		label := text(sel)
		if label == "" || strings.Contains(strings.ToLower(label), "show more") {
			label = slugLabel(segs[2])
		}
		add(abs, label)
	})
	// Section dividers link subcategories with non-explore URLs on some pages.
	doc.Find("span.seDi a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := crawler.ResolveURL(pageURL, href)
		if !ok || crawler.URLKey(abs) == crawler.URLKey(pageURL) {
			return
		}
		add(abs, text(sel))
	})
	if total == 0 {
		return nil, &crawler.ParseError{URL: pageURL, Page: "subcategories", Reason: "page has no links"}
	}
	return links, nil
}

// ParseListing returns model entries plus further listing pages: pagination,
// "show more" links, and per-make sub-listings nested under the page's path.
func (e *Extractor) ParseListing(body []byte, pageURL string) (crawler.ListingPage, error) {
	doc, err := load(body, pageURL, "listing")
	if err != nil {
		return crawler.ListingPage{}, err
	}
	pageKey := crawler.URLKey(pageURL)
	pageSegs := crawler.PathSegments(pageURL)

	var page crawler.ListingPage
	seenModels := map[string]struct{}{}
	seenNext := map[string]struct{}{pageKey: {}}

	total := anchors(doc, pageURL, func(abs string, sel *goquery.Selection) {
		if !sameHost(abs, pageURL) {
			return
		}
		if makeSlug, year, model, ok := modelPath(abs); ok {
			key := crawler.URLKey(abs)
			if _, dup := seenModels[key]; dup {
				return
			}
			seenModels[key] = struct{}{}
			desc, _ := sel.Attr("title")
			if desc == "" {
				desc = text(sel)
			}
			page.Entries = append(page.Entries, crawler.ListingEntry{
				ModelURL:    abs,
				Make:        makeSlug,
				Name:        model,
				Year:        year,
				Description: desc,
			})
			return
		}
		if isNextLink(sel) || isNestedListing(pageSegs, crawler.PathSegments(abs)) {
			page.Next = appendUnique(page.Next, seenNext, abs)
		}
	})

	doc.Find("nav, div").Each(func(_ int, block *goquery.Selection) {
		class, _ := block.Attr("class")
		if !paginateAttr.MatchString(class) {
			return
		}
		block.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			label := strings.ToLower(text(sel))
			if !strings.Contains(label, "next") && label != ">" && label != "»" {
				return
			}
			href, _ := sel.Attr("href")
			if abs, ok := crawler.ResolveURL(pageURL, href); ok && sameHost(abs, pageURL) {
				page.Next = appendUnique(page.Next, seenNext, abs)
			}
		})
	})

	if total == 0 {
		return crawler.ListingPage{}, &crawler.ParseError{URL: pageURL, Page: "listing", Reason: "page has no links"}
	}
	return page, nil
}

func isNextLink(sel *goquery.Selection) bool {
	label := strings.ToLower(text(sel))
	if label == "" || len(label) > 20 {
		return false
	}
	for _, kw := range nextKeywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

// isNestedListing reports whether link sits one level below an explore page,
// which is how the site exposes per-make listings within a subcategory.
func isNestedListing(page, link []string) bool {
	if len(page) < 3 || page[0] != exploreSegment {
		return false
	}
	return len(link) == len(page)+1 && slices.Equal(link[:len(page)], page)
}
