package memory

import (
	"sync"

	"github.com/JakeFAU/sitescrape/internal/crawler"
)

// Collector is the append-only list of accepted pages, kept in completion
// order. A positive maxPages caps the list.
type Collector struct {
	mu       sync.Mutex
	pages    []crawler.PageRecord
	maxPages int
}

// NewCollector constructs a Collector; maxPages <= 0 means unlimited.
func NewCollector(maxPages int) *Collector {
	return &Collector{maxPages: maxPages}
}

// Add appends rec unless the cap is already reached.
func (c *Collector) Add(rec crawler.PageRecord) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxPages > 0 && len(c.pages) >= c.maxPages {
		return false, false
	}
	c.pages = append(c.pages, rec)
	return true, c.maxPages > 0 && len(c.pages) == c.maxPages
}

// Len returns the number of accepted pages.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Pages returns a copy of the accepted pages.
func (c *Collector) Pages() []crawler.PageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]crawler.PageRecord, len(c.pages))
	copy(out, c.pages)
	return out
}
