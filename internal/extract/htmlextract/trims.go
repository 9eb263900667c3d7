package htmlextract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const (
	defaultTrimName     = "Base"
	defaultSpecCategory = "General"
)

var (
	specKeywords    = []string{"engine", "power", "torque", "transmission", "fuel", "safety", "weight"}
	genericLabels   = []string{"specification", "feature", "detail", "info"}
	headingSelector = "h1, h2, h3, h4, strong, b"
)

// ParseTrims collects trim sections: elements whose class or id mentions spec
// or trim, plus tables that read like specification tables. Sections nested
// inside another section are folded into the outer one. Trims sharing a name
// are combined, and repeated values within a spec category are dropped.
func (e *Extractor) ParseTrims(body []byte, pageURL string) ([]crawler.TrimRecord, error) {
	doc, err := load(body, pageURL, "trims")
	if err != nil {
		return nil, err
	}

	var sections []*goquery.Selection
	picked := map[*html.Node]struct{}{}
	consider := func(sel *goquery.Selection) {
		node := sel.Get(0)
		for p := node.Parent; p != nil; p = p.Parent {
			if _, ok := picked[p]; ok {
				return
			}
		}
		if _, ok := picked[node]; ok {
			return
		}
		picked[node] = struct{}{}
		sections = append(sections, sel)
	}
	doc.Find("table, div, section").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		if specAttr.MatchString(class) || specAttr.MatchString(id) || looksLikeSpecTable(sel) {
			consider(sel)
		}
	})
	if len(sections) == 0 {
		return nil, &crawler.ParseError{URL: pageURL, Page: "trims", Reason: "no specification sections"}
	}

	var trims []crawler.TrimRecord
	index := map[string]int{}
	for _, section := range sections {
		trim := parseTrimSection(section)
		if i, ok := index[trim.Name]; ok {
			mergeInto(&trims[i], trim)
			continue
		}
		index[trim.Name] = len(trims)
		trims = append(trims, trim)
	}
	for i := range trims {
		dedupeSpecs(trims[i].Specifications)
	}
	return trims, nil
}

func dedupeSpecs(specs map[string][]string) {
	for cat, vals := range specs {
		seen := make(map[string]struct{}, len(vals))
		kept := vals[:0]
		for _, v := range vals {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			kept = append(kept, v)
		}
		specs[cat] = kept
	}
}

func looksLikeSpecTable(sel *goquery.Selection) bool {
	if goquery.NodeName(sel) != "table" {
		return false
	}
	lower := strings.ToLower(sel.Text())
	for _, kw := range specKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseTrimSection(section *goquery.Selection) crawler.TrimRecord {
	trim := crawler.TrimRecord{Name: defaultTrimName}
	if heading := text(section.Find(headingSelector).First()); heading != "" && len(heading) < 50 && !isDigits(heading) {
		trim.Name = heading
	}
	if price := priceRe.FindString(section.Text()); price != "" {
		trim.Price = &price
	}
	var specs map[string][]string
	if table := tableOf(section); table != nil {
		specs = parseSpecTable(table)
	} else {
		specs = parseSpecList(section)
	}
	if len(specs) > 0 {
		trim.Specifications = specs
	}
	return trim
}

func tableOf(section *goquery.Selection) *goquery.Selection {
	if goquery.NodeName(section) == "table" {
		return section
	}
	if t := section.Find("table").First(); t.Length() > 0 {
		return t
	}
	return nil
}

// parseSpecTable reads rows into categories. Single-cell rows and th/bold
// labels start a new category; label/value rows append "Label: Value".
func parseSpecTable(table *goquery.Selection) map[string][]string {
	specs := map[string][]string{}
	current := ""
	ensure := func(cat string) {
		if _, ok := specs[cat]; !ok {
			specs[cat] = []string{}
		}
	}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		switch {
		case cells.Length() == 1:
			if cat := text(cells); cat != "" && len(cat) < maxLabelLength {
				current = cat
				ensure(current)
			}
		case cells.Length() >= 2:
			first := cells.Eq(0)
			label, value := text(first), text(cells.Eq(1))
			if label == "" && value == "" {
				return
			}
			isCategory := goquery.NodeName(first) == "th" || first.Find("strong, b, h3, h4").Length() > 0 || value == ""
			switch {
			case isCategory && label != "":
				current = label
				ensure(current)
			case label != "" && value != "":
				if current == "" {
					current = defaultSpecCategory
				}
				ensure(current)
				if isGeneric(label) {
					specs[current] = append(specs[current], value)
				} else {
					specs[current] = append(specs[current], label+": "+value)
				}
			case value != "" && current != "":
				specs[current] = append(specs[current], value)
			}
		}
	})
	return specs
}

func parseSpecList(section *goquery.Selection) map[string][]string {
	specs := map[string][]string{}
	current := ""
	section.Find("ul, ol, dl").Each(func(_ int, list *goquery.Selection) {
		if prev := list.PrevAllFiltered("h2, h3, h4, h5, strong, b, p").First(); prev.Length() > 0 {
			if t := text(prev); t != "" && len(t) < maxLabelLength {
				current = t
			}
		}
		items := list.Find("li")
		if goquery.NodeName(list) == "dl" {
			items = list.Find("dt, dd")
		}
		items.Each(func(_ int, item *goquery.Selection) {
			t := text(item)
			if t == "" {
				return
			}
			if goquery.NodeName(item) == "dt" || item.Find("strong, b, h3, h4").Length() > 0 {
				current = t
				if _, ok := specs[current]; !ok {
					specs[current] = []string{}
				}
				return
			}
			if current == "" {
				current = defaultSpecCategory
			}
			specs[current] = append(specs[current], t)
		})
	})
	return specs
}

func mergeInto(dst *crawler.TrimRecord, src crawler.TrimRecord) {
	if dst.Price == nil {
		dst.Price = src.Price
	}
	if len(src.Specifications) == 0 {
		return
	}
	if dst.Specifications == nil {
		dst.Specifications = map[string][]string{}
	}
	for cat, vals := range src.Specifications {
		dst.Specifications[cat] = append(dst.Specifications[cat], vals...)
	}
}

func isGeneric(label string) bool {
	lower := strings.ToLower(label)
	for _, g := range genericLabels {
		if lower == g {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
