package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Non-2xx statuses,
// network errors and timeouts are all returned as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns a fetched body into a PageRecord and discovered links.
type Extractor interface {
	Extract(pageURL string, body []byte, contentType string) (Extraction, error)
}

// Frontier is the shared queue of URLs awaiting fetch.
type Frontier interface {
	// Push enqueues url unless it is already pending or the frontier is closed.
	Push(url string) bool
	// Pop hands out the next URL and counts it as in flight.
	Pop() (string, bool)
	// Done marks one popped URL as finished.
	Done()
	// IsDrained reports an empty queue with nothing in flight.
	IsDrained() bool
	// Close discards pending entries and rejects further pushes.
	Close()
	Len() int
}

// Ledger records claimed URLs and accepted content fingerprints.
type Ledger interface {
	TryClaim(url string) bool
	IsClaimed(url string) bool
	TryAcceptFingerprint(fingerprint string) bool
}

// Collector is the append-only result list owned by the coordinator.
type Collector interface {
	// Add appends rec unless the page cap is reached. reachedCap is true only
	// for the call that filled the last slot.
	Add(rec PageRecord) (accepted bool, reachedCap bool)
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// BlobStore writes an artifact and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// PageStore persists accepted pages row by row along with a run summary.
type PageStore interface {
	SavePages(ctx context.Context, runID string, pages []PageRecord) error
	SaveRun(ctx context.Context, result Result) error
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
