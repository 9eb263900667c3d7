package crawler

import (
	"context"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests used for archive file names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Fetcher retrieves a page with pacing and retry applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// PageExtractor turns fetched HTML into typed records. Every method returns a
// *ParseError when the expected structure is absent.
type PageExtractor interface {
	ParseCategories(body []byte, pageURL string) ([]Link, error)
	ParseSubcategories(body []byte, pageURL string) ([]Link, error)
	ParseListing(body []byte, pageURL string) (ListingPage, error)
	ParseDetail(body []byte, pageURL string) (DetailRecord, error)
	ParseGallery(body []byte, pageURL string) ([]GalleryEntry, error)
	ParseTrims(body []byte, pageURL string) ([]TrimRecord, error)
}

// RecordStore persists model records. Read returns nil when no record exists;
// Write replaces the previous record atomically.
type RecordStore interface {
	Read(ctx context.Context, key ModelKey) (*ModelRecord, error)
	Write(ctx context.Context, record ModelRecord) error
}

// Archive preserves raw HTML for pages that failed to parse.
type Archive interface {
	Save(ctx context.Context, pageURL string, body []byte) (string, error)
}

// Notifier announces persisted records to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, event RecordEvent) error
}
