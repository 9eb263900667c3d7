package crawler

import (
	"fmt"
	"time"
)

// Kind identifies the level of a WorkItem in the discovery tree.
type Kind string

// Supported work item kinds, ordered from the site index down to model pages.
const (
	KindRoot        Kind = "root"
	KindCategory    Kind = "category"
	KindSubcategory Kind = "subcategory"
	KindListing     Kind = "listing"
	KindModel       Kind = "model"
)

// Kinds lists every kind in traversal order.
var Kinds = []Kind{KindRoot, KindCategory, KindSubcategory, KindListing, KindModel}

// Level returns the breadth-first level of the kind, or -1 when unknown.
func (k Kind) Level() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// Terminal reports whether items of this kind produce records rather than children.
func (k Kind) Terminal() bool {
	return k == KindModel
}

// ParseKind validates a persisted kind string.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if k.Level() < 0 {
		return "", fmt.Errorf("unknown work item kind %q", raw)
	}
	return k, nil
}

// WorkItem is one unit of crawl work. Items are immutable once enqueued and
// keyed by their normalized URL.
type WorkItem struct {
	Kind   Kind   `json:"kind"`
	URL    string `json:"url"`
	Parent string `json:"parent,omitempty"`
	// Label is the link text the item was discovered under.
	Label string `json:"label,omitempty"`
	// Category and Subcategory carry the discovery context down to model pages.
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
}

// Key returns the dedupe and checkpoint key for the item.
func (w WorkItem) Key() string {
	return URLKey(w.URL)
}

// Child derives a work item discovered on w's page, inheriting its context.
func (w WorkItem) Child(kind Kind, url, label string) WorkItem {
	return WorkItem{
		Kind:        kind,
		URL:         url,
		Parent:      w.Key(),
		Label:       label,
		Category:    w.Category,
		Subcategory: w.Subcategory,
	}
}

// ModelKey is the normalized (make, model) identity of a persisted record.
type ModelKey struct {
	Make  string `json:"make"`
	Model string `json:"model"`
}

// String renders the key as make/model.
func (k ModelKey) String() string {
	return k.Make + "/" + k.Model
}

// Path returns the record's object path, make=<make>/<model>.json.
func (k ModelKey) Path() string {
	return "make=" + k.Make + "/" + k.Model + ".json"
}

// Valid reports whether both halves of the key are present.
func (k ModelKey) Valid() bool {
	return k.Make != "" && k.Model != ""
}

// TrimRecord describes a single trim level of a model year.
type TrimRecord struct {
	Name           string              `json:"name"`
	Price          *string             `json:"price,omitempty"`
	Specifications map[string][]string `json:"specifications,omitempty"`
}

// YearRecord holds everything captured for one model year.
type YearRecord struct {
	MainImages   []string     `json:"main_images"`
	ExpertReview string       `json:"expert_review"`
	Trims        []TrimRecord `json:"trims"`
	SourceURL    string       `json:"source_url,omitempty"`
	Category     string       `json:"category,omitempty"`
	Subcategory  string       `json:"subcategory,omitempty"`
}

// ModelRecord is the unit of persistence. Merges only ever add years.
type ModelRecord struct {
	Make  string                `json:"make"`
	Model string                `json:"model"`
	Years map[string]YearRecord `json:"years"`
}

// Key returns the record's identity.
func (r ModelRecord) Key() ModelKey {
	return ModelKey{Make: r.Make, Model: r.Model}
}

// Response is what the HTTP primitive returns for any completed exchange.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// FetchResult is a successful paced fetch.
type FetchResult struct {
	URL      string
	Status   int
	Body     []byte
	Attempts int
	Duration time.Duration
}

// Link is an anchor discovered on a navigation page.
type Link struct {
	URL   string
	Label string
}

// ListingEntry is one model reference found on a listing page. A listing block
// that describes several submodels yields one entry per submodel.
type ListingEntry struct {
	ModelURL    string
	Make        string
	Name        string
	Year        string
	Description string
}

// ListingPage is the parsed content of a listing page.
type ListingPage struct {
	Entries []ListingEntry
	// Next holds pagination and "show more" links to further listing pages.
	Next []string
}

// DetailRecord is the parsed content of a model page.
type DetailRecord struct {
	Make       string
	Model      string
	Years      []string
	Review     string
	GalleryURL string
	Trims      []TrimRecord
}

// GalleryEntry is one image from a gallery page. Width and Height are zero when
// the resolution cannot be derived.
type GalleryEntry struct {
	URL    string
	Width  int
	Height int
}

// Pixels returns the image area used for resolution ordering.
func (g GalleryEntry) Pixels() int {
	return g.Width * g.Height
}

// RecordEvent announces a persisted model record.
type RecordEvent struct {
	RunID       string    `json:"run_id"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	Years       []string  `json:"years"`
	SourceURL   string    `json:"source_url"`
	PersistedAt time.Time `json:"persisted_at"`
}
