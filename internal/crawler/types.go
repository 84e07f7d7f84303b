package crawler

import (
	"net/http"
	"time"
)

// PageRecord is the persisted result for one accepted page.
type PageRecord struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Images      []string `json:"images"`
	Files       []string `json:"files"`
}

// Extraction is what the extractor produces for one page: the record plus the
// raw anchor hrefs used for link discovery.
type Extraction struct {
	Record PageRecord
	Links  []string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Stats tracks per-crawl counters.
type Stats struct {
	Claimed    int `json:"claimed"`
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Accepted   int `json:"accepted"`
	Discovered int `json:"discovered"`
}

// Result is returned by a completed (or interrupted) crawl.
type Result struct {
	RunID      string       `json:"run_id"`
	StartURL   string       `json:"start_url"`
	Domain     string       `json:"domain"`
	State      State        `json:"state"`
	Pages      []PageRecord `json:"-"`
	Stats      Stats        `json:"stats"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Config holds the knobs that shape a single crawl.
type Config struct {
	Workers            int
	MaxPages           int
	UserAgent          string
	RequestTimeout     time.Duration
	IdleBackoffInitial time.Duration
	IdleBackoffMax     time.Duration
}

// Identity returns the User-Agent presented to the crawled domain.
func (c Config) Identity(domain string) string {
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return ua + " (+https://" + domain + ")"
}

// DefaultUserAgent is the product token used when none is configured.
const DefaultUserAgent = "WebsiteScraper/1.0"

// CompletedEvent is published once a crawl has been persisted.
type CompletedEvent struct {
	RunID      string    `json:"run_id"`
	StartURL   string    `json:"start_url"`
	Domain     string    `json:"domain"`
	State      State     `json:"state"`
	Pages      int       `json:"pages"`
	Location   string    `json:"location"`
	Stats      Stats     `json:"stats"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewCompletedEvent summarizes result stored at location.
func NewCompletedEvent(result Result, location string) CompletedEvent {
	return CompletedEvent{
		RunID:      result.RunID,
		StartURL:   result.StartURL,
		Domain:     result.Domain,
		State:      result.State,
		Pages:      len(result.Pages),
		Location:   location,
		Stats:      result.Stats,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
}
