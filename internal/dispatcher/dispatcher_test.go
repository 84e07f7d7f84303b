package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/extract"
	collyfetcher "github.com/JakeFAU/sitescrape/internal/fetcher/colly"
	"github.com/JakeFAU/sitescrape/internal/hash/sha256"
)

func TestCrawlSinglePageWithoutLinks(t *testing.T) {
	t.Parallel()

	site := newSite(t, map[string]string{
		"/": `<html><head><title>Solo</title></head><body><p>Alone</p></body></html>`,
	})

	result, err := newDispatcher(crawler.Config{Workers: 4}).Crawl(context.Background(), site.URL)
	require.NoError(t, err)
	require.Equal(t, crawler.StateDone, result.State)
	require.Len(t, result.Pages, 1)
	require.Equal(t, site.URL+"/", result.Pages[0].URL)
	require.Equal(t, "Solo", result.Pages[0].Title)
}

func TestCrawlFailedSeedYieldsNothing(t *testing.T) {
	t.Parallel()

	site := newSite(t, map[string]string{})

	result, err := newDispatcher(crawler.Config{Workers: 2}).Crawl(context.Background(), site.URL+"/missing")
	require.NoError(t, err)
	require.Equal(t, crawler.StateDone, result.State)
	require.Empty(t, result.Pages)
	require.Equal(t, 1, result.Stats.Skipped)
}

func TestCrawlHomeScenario(t *testing.T) {
	t.Parallel()

	offsite := newSite(t, map[string]string{"/x": `<p>elsewhere</p>`})
	site := newSite(t, map[string]string{
		"/": `<html><head><title>Home</title></head><body>
			<p>Welcome</p>
			<a href="/about">About</a>
			<a href="` + offsite.URL + `/x">Elsewhere</a>
		</body></html>`,
		"/about": `<html><head><title>About</title></head><body><p>About us</p></body></html>`,
	})

	result, err := newDispatcher(crawler.Config{Workers: 3}).Crawl(context.Background(), site.URL)
	require.NoError(t, err)
	require.Len(t, result.Pages, 2)

	byURL := pagesByURL(result.Pages)
	home, ok := byURL[site.URL+"/"]
	require.True(t, ok)
	require.Equal(t, "Home", home.Title)
	require.Equal(t, "Welcome", home.Text)
	require.Contains(t, byURL, site.URL+"/about")
	require.Zero(t, offsite.total())
	require.Equal(t, 1, result.Stats.Discovered)
}

func TestCrawlAcceptsOneOfIdenticalPages(t *testing.T) {
	t.Parallel()

	site := newSite(t, map[string]string{
		"/":  `<p>Index</p><a href="/a">A</a><a href="/b">B</a>`,
		"/a": `<html><head><title>A</title></head><body><p>Duplicate</p></body></html>`,
		"/b": `<html><head><title>B</title></head><body><p>Duplicate</p></body></html>`,
	})

	for range 5 {
		result, err := newDispatcher(crawler.Config{Workers: 4}).Crawl(context.Background(), site.URL)
		require.NoError(t, err)
		require.Len(t, result.Pages, 2)
		count := 0
		for _, p := range result.Pages {
			if p.Text == "Duplicate" {
				count++
			}
		}
		require.Equal(t, 1, count)
		require.Equal(t, 1, result.Stats.Duplicates)
	}
}

func TestCrawlStopsAtPageCap(t *testing.T) {
	t.Parallel()

	pages := map[string]string{}
	var nav strings.Builder
	for i := range 20 {
		fmt.Fprintf(&nav, `<a href="/p%d">p%d</a>`, i, i)
	}
	pages["/"] = nav.String() + "<p>root</p>"
	for i := range 20 {
		pages[fmt.Sprintf("/p%d", i)] = nav.String() + fmt.Sprintf("<p>page %d</p>", i)
	}
	site := newSite(t, pages)

	result, err := newDispatcher(crawler.Config{Workers: 6, MaxPages: 5}).Crawl(context.Background(), site.URL)
	require.NoError(t, err)
	require.Equal(t, crawler.StateCapped, result.State)
	require.Len(t, result.Pages, 5)
	require.Equal(t, 5, result.Stats.Accepted)
}

func TestCrawlNeverFetchesAURLTwice(t *testing.T) {
	t.Parallel()

	paths := []string{"a", "b", "c", "d", "e", "f"}
	var nav strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&nav, `<a href="/%s">x</a><a href="/%s/">x</a><a href="/%s/index.html">x</a><a href="/%s#top">x</a>`, p, p, p, p)
	}
	nav.WriteString(`<a href="/">home</a><a href="/index.html">home</a>`)
	pages := map[string]string{"/": nav.String() + "<p>root</p>"}
	for _, p := range paths {
		pages["/"+p] = nav.String() + "<p>" + p + "</p>"
	}
	site := newSite(t, pages)

	result, err := newDispatcher(crawler.Config{Workers: 8}).Crawl(context.Background(), site.URL)
	require.NoError(t, err)
	require.Len(t, result.Pages, len(paths)+1)
	for path, n := range site.snapshot() {
		require.Equal(t, 1, n, path)
	}
}

func TestCrawlCanceledReturnsPartialResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var once sync.Once
	hit := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(hit) })
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		result crawler.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := newDispatcher(crawler.Config{Workers: 2, RequestTimeout: 10 * time.Second}).Crawl(ctx, srv.URL)
		done <- outcome{res, err}
	}()

	<-hit
	cancel()
	select {
	case out := <-done:
		require.ErrorIs(t, out.err, context.Canceled)
		require.Equal(t, crawler.StateCanceled, out.result.State)
		require.Empty(t, out.result.Pages)
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancel")
	}
}

func TestCrawlRejectsInvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := newDispatcher(crawler.Config{}).Crawl(context.Background(), "ftp://example.com/")
	require.ErrorIs(t, err, crawler.ErrInvalidSeed)
}

func TestCrawlStampsRunMetadata(t *testing.T) {
	t.Parallel()

	site := newSite(t, map[string]string{"/": `<p>meta</p>`})
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := New(
		collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		extract.New(),
		sha256.New(),
		fixedID("run-1"),
		&stepClock{now: start},
		crawler.Config{Workers: 1},
		zap.NewNop(),
	)

	result, err := d.Crawl(context.Background(), site.URL+"/index.html")
	require.NoError(t, err)
	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, site.URL+"/", result.StartURL)
	require.Equal(t, strings.TrimPrefix(site.URL, "http://"), result.Domain)
	require.Equal(t, start, result.StartedAt)
	require.Equal(t, start.Add(time.Second), result.FinishedAt)
}

func newDispatcher(cfg crawler.Config) *Dispatcher {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	cfg.IdleBackoffInitial = time.Millisecond
	cfg.IdleBackoffMax = 10 * time.Millisecond
	return New(
		collyfetcher.New(collyfetcher.Config{Timeout: cfg.RequestTimeout}),
		extract.New(),
		sha256.New(),
		nil,
		nil,
		cfg,
		zap.NewNop(),
	)
}

func pagesByURL(pages []crawler.PageRecord) map[string]crawler.PageRecord {
	out := make(map[string]crawler.PageRecord, len(pages))
	for _, p := range pages {
		out[p.URL] = p
	}
	return out
}

type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.hits))
	for k, v := range s.hits {
		out[k] = v
	}
	return out
}

func (s *site) total() int {
	n := 0
	for _, v := range s.snapshot() {
		n += v
	}
	return n
}

type fixedID string

func (f fixedID) NewID() (string, error) {
	return string(f), nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(time.Second)
	return now
}
