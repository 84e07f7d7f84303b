// Package memory provides in-process stores for a single crawl run: the dedup
// ledger, the page collector and a blob store used in tests.
package memory

import "sync"

// Ledger tracks claimed URLs and accepted content fingerprints. Both maps sit
// behind one mutex so every check-and-set is atomic.
type Ledger struct {
	mu           sync.Mutex
	claimed      map[string]struct{}
	fingerprints map[string]struct{}
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		claimed:      make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

// TryClaim marks url as claimed and reports true iff it was unclaimed.
func (l *Ledger) TryClaim(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.claimed[url]; ok {
		return false
	}
	l.claimed[url] = struct{}{}
	return true
}

// IsClaimed reports whether url has been claimed.
func (l *Ledger) IsClaimed(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.claimed[url]
	return ok
}

// TryAcceptFingerprint records fp and reports true iff it was not seen before.
func (l *Ledger) TryAcceptFingerprint(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fingerprints[fp]; ok {
		return false
	}
	l.fingerprints[fp] = struct{}{}
	return true
}

// Claimed returns the number of claimed URLs.
func (l *Ledger) Claimed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claimed)
}

// Fingerprints returns the number of accepted fingerprints.
func (l *Ledger) Fingerprints() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fingerprints)
}
