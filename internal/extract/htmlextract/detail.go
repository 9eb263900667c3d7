package htmlextract

import (
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

var navNoise = []string{"home", "menu", "navigation", "cookie", "privacy"}

var reviewIndicators = []string{"engine", "power", "drive", "handling", "interior", "exterior", "performance"}

// ParseDetail reads make, model, and year from the model page URL (falling back
// to the canonical link), then collects years named in headings, the expert
// review, and any trims on the page.
func (e *Extractor) ParseDetail(body []byte, pageURL string) (crawler.DetailRecord, error) {
	doc, err := load(body, pageURL, "detail")
	if err != nil {
		return crawler.DetailRecord{}, err
	}
	identity := pageURL
	makeSlug, year, model, ok := modelPath(pageURL)
	if !ok {
		if canonical, found := doc.Find(`link[rel="canonical"]`).Attr("href"); found {
			if abs, resolved := crawler.ResolveURL(pageURL, canonical); resolved {
				makeSlug, year, model, ok = modelPath(abs)
				identity = abs
			}
		}
	}
	if !ok {
		return crawler.DetailRecord{}, &crawler.ParseError{URL: pageURL, Page: "detail", Reason: "make/model not derivable from url"}
	}

	years := map[string]struct{}{year: {}}
	doc.Find("title, h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		for _, y := range yearInText.FindAllString(sel.Text(), -1) {
			years[y] = struct{}{}
		}
	})

	trims, _ := e.ParseTrims(body, pageURL)

	return crawler.DetailRecord{
		Make:       makeSlug,
		Model:      model,
		Years:      sortedDesc(years),
		Review:     extractReview(doc),
		GalleryURL: strings.TrimRight(crawler.URLKey(identity), "/") + gallerySuffix + "/",
		Trims:      trims,
	}, nil
}

func extractReview(doc *goquery.Document) string {
	var review string
	doc.Find("div, section, article, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		if !reviewAttr.MatchString(class) && !reviewAttr.MatchString(id) {
			return true
		}
		t := text(sel)
		if !reviewLength(t) || startsWithNoise(t) {
			return true
		}
		review = t
		return false
	})
	if review != "" {
		return review
	}

	main := doc.Find("main, article").First()
	if main.Length() > 0 {
		main.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			if t := text(p); reviewLength(t) {
				review = t
				return false
			}
			return true
		})
		if review != "" {
			return review
		}
	}

	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := text(p)
		if len(t) <= 2*minReviewLength || len(t) >= maxReviewLength {
			return true
		}
		lower := strings.ToLower(t)
		for _, ind := range reviewIndicators {
			if strings.Contains(lower, ind) {
				review = t
				return false
			}
		}
		return true
	})
	return review
}

func reviewLength(t string) bool {
	return len(t) > minReviewLength && len(t) < maxReviewLength
}

func startsWithNoise(t string) bool {
	head := strings.ToLower(t)
	if len(head) > 100 {
		head = head[:100]
	}
	for _, n := range navNoise {
		if strings.Contains(head, n) {
			return true
		}
	}
	return false
}

// ParseGallery returns the gallery images, highest resolution first. Images
// whose URL does not mention the model are dropped so that related-model
// thumbnails do not leak into the record.
func (e *Extractor) ParseGallery(body []byte, pageURL string) ([]crawler.GalleryEntry, error) {
	doc, err := load(body, pageURL, "gallery")
	if err != nil {
		return nil, err
	}
	makeSlug, model := galleryIdentity(pageURL)

	var entries []crawler.GalleryEntry
	seen := map[string]struct{}{}
	add := func(raw string, sel *goquery.Selection) {
		abs, ok := crawler.ResolveURL(pageURL, raw)
		if !ok || !isImageURL(abs) || !matchesModel(abs, makeSlug, model) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		w, h, _ := crawler.ImageResolution(abs)
		if w == 0 && sel != nil {
			w, h = attrInt(sel, "width"), attrInt(sel, "height")
		}
		entries = append(entries, crawler.GalleryEntry{URL: abs, Width: w, Height: h})
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
			if v, ok := img.Attr(attr); ok && v != "" {
				add(v, img)
			}
		}
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		add(href, nil)
	})

	if len(entries) == 0 {
		return nil, &crawler.ParseError{URL: pageURL, Page: "gallery", Reason: "no images"}
	}
	slices.SortStableFunc(entries, func(a, b crawler.GalleryEntry) int {
		return b.Pixels() - a.Pixels()
	})
	return entries, nil
}

func galleryIdentity(pageURL string) (makeSlug, model string) {
	segs := crawler.PathSegments(pageURL)
	if len(segs) != 2 {
		return "", ""
	}
	slug := strings.TrimSuffix(segs[1], gallerySuffix)
	m := yearPrefix.FindStringSubmatch(slug)
	if m == nil {
		return "", ""
	}
	return segs[0], m[2]
}

func isImageURL(raw string) bool {
	lower := strings.ToLower(raw)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// matchesModel requires both make and model tokens in the image URL. Sites
// mix '-' and '_' so both spellings are accepted.
func matchesModel(raw, makeSlug, model string) bool {
	if makeSlug == "" || model == "" {
		return true
	}
	lower := strings.ToLower(raw)
	return containsToken(lower, makeSlug) && containsToken(lower, model)
}

func containsToken(s, token string) bool {
	token = strings.ToLower(token)
	for _, v := range []string{token, strings.ReplaceAll(token, "_", "-"), strings.ReplaceAll(token, "-", "_")} {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func attrInt(sel *goquery.Selection, name string) int {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
