// Package memory provides the in-process crawl frontier.
package memory

import "sync"

// Frontier is a FIFO of URLs awaiting fetch. It keeps at most one pending
// entry per URL and counts popped-but-unfinished entries so that drain
// detection sees work a worker is still holding.
type Frontier struct {
	mu       sync.Mutex
	queue    []string
	pending  map[string]struct{}
	inFlight int
	closed   bool
}

// NewFrontier constructs an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		pending: make(map[string]struct{}),
	}
}

// Push enqueues url. It is a no-op when url is already pending or the
// frontier has been closed.
func (f *Frontier) Push(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, ok := f.pending[url]; ok {
		return false
	}
	f.pending[url] = struct{}{}
	f.queue = append(f.queue, url)
	return true
}

// Pop removes the next URL and counts it as in flight. Every successful Pop
// must be paired with one Done.
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.queue) == 0 {
		return "", false
	}
	url := f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	delete(f.pending, url)
	f.inFlight++
	return url, true
}

// Done marks one popped URL as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
}

// IsDrained reports an empty queue with nothing in flight.
func (f *Frontier) IsDrained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) == 0 && f.inFlight == 0
}

// Close discards pending entries and turns further pushes into no-ops.
// In-flight entries still need their Done.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	clear(f.pending)
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of popped, unfinished entries.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
