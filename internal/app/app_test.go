package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/app"
	"github.com/JakeFAU/sitescrape/internal/config"
	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/output"
	pubmemory "github.com/JakeFAU/sitescrape/internal/publisher/memory"
	"github.com/JakeFAU/sitescrape/internal/storage/memory"
)

// MockPageStore mocks the crawler.PageStore interface.
type MockPageStore struct {
	mock.Mock
}

// SavePages satisfies crawler.PageStore.
func (m *MockPageStore) SavePages(ctx context.Context, runID string, pages []crawler.PageRecord) error {
	args := m.Called(ctx, runID, pages)
	return args.Error(0) //nolint:wrapcheck
}

// SaveRun satisfies crawler.PageStore.
func (m *MockPageStore) SaveRun(ctx context.Context, result crawler.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0) //nolint:wrapcheck
}

// Close satisfies crawler.PageStore.
func (m *MockPageStore) Close() {
	m.Called()
}

type fakeCrawler struct {
	result crawler.Result
	err    error
}

func (f fakeCrawler) Crawl(context.Context, string) (crawler.Result, error) {
	return f.result, f.err
}

func sampleResult() crawler.Result {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return crawler.Result{
		RunID:    "run-1",
		StartURL: "https://ex.com/",
		Domain:   "ex.com",
		State:    crawler.StateDone,
		Pages: []crawler.PageRecord{
			{URL: "https://ex.com/", Title: "Home", Text: "Welcome"},
			{URL: "https://ex.com/about", Title: "About", Text: "About us"},
		},
		Stats:      crawler.Stats{Claimed: 2, Fetched: 2, Accepted: 2, Discovered: 1},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}
}

func TestRunPersistsEverywhere(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	blobs := memory.NewBlobStore()
	pages := &MockPageStore{}
	pages.On("SavePages", mock.Anything, "run-1", result.Pages).Return(nil).Once()
	pages.On("SaveRun", mock.Anything, result).Return(nil).Once()
	pages.On("Close").Return().Once()
	pub := pubmemory.New()

	cfg := config.Config{PubSub: config.PubSubConfig{ProjectID: "p", Topic: "crawls"}}
	a := app.NewWithServices(cfg, zap.NewNop(), app.Services{
		Crawler:   fakeCrawler{result: result},
		Output:    output.New(blobs, "site.json", ""),
		Pages:     pages,
		Publisher: pub,
	})

	summary, err := a.Run(context.Background(), "https://ex.com")
	require.NoError(t, err)
	require.Equal(t, "memory://site.json", summary.Location)
	require.Len(t, summary.Result.Pages, 2)

	data, _, ok := blobs.Object("site.json")
	require.True(t, ok)
	var written []crawler.PageRecord
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 2)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawls", msgs[0].Topic)
	event, ok := msgs[0].Payload.(crawler.CompletedEvent)
	require.True(t, ok)
	require.Equal(t, 2, event.Pages)
	require.Equal(t, "memory://site.json", event.Location)
	require.Equal(t, crawler.StateDone, event.State)

	a.Close()
	pages.AssertExpectations(t)
}

func TestRunSavesPartialResultOnCancel(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.State = crawler.StateCanceled
	result.Pages = result.Pages[:1]
	blobs := memory.NewBlobStore()
	a := app.NewWithServices(config.Config{}, zap.NewNop(), app.Services{
		Crawler: fakeCrawler{result: result, err: fmt.Errorf("crawl interrupted: %w", context.Canceled)},
		Output:  output.New(blobs, "partial.json", ""),
	})

	summary, err := a.Run(context.Background(), "https://ex.com")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "memory://partial.json", summary.Location)
	require.Len(t, summary.Result.Pages, 1)
	_, _, ok := blobs.Object("partial.json")
	require.True(t, ok)
}

func TestRunFailsWithoutWritingOnBadSeed(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	a := app.NewWithServices(config.Config{}, nil, app.Services{
		Crawler: fakeCrawler{err: fmt.Errorf("seed: %w", crawler.ErrInvalidSeed)},
		Output:  output.New(blobs, "site.json", ""),
	})

	_, err := a.Run(context.Background(), "nope")
	require.ErrorIs(t, err, crawler.ErrInvalidSeed)
	_, _, ok := blobs.Object("site.json")
	require.False(t, ok)
}

func TestRunToleratesSinkFailures(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	pages := &MockPageStore{}
	pages.On("SavePages", mock.Anything, "run-1", result.Pages).Return(errors.New("db down")).Once()
	pub := pubmemory.New()
	pub.FailWith(errors.New("pubsub down"))

	a := app.NewWithServices(config.Config{PubSub: config.PubSubConfig{Topic: "crawls"}}, zap.NewNop(), app.Services{
		Crawler:   fakeCrawler{result: result},
		Output:    output.New(memory.NewBlobStore(), "site.json", ""),
		Pages:     pages,
		Publisher: pub,
	})

	summary, err := a.Run(context.Background(), "https://ex.com")
	require.NoError(t, err)
	assert.Equal(t, "memory://site.json", summary.Location)
	pages.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
	pages.AssertExpectations(t)
}

func TestNewBuildsLocalOutput(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Crawler: config.CrawlerConfig{Workers: 2, UserAgent: crawler.DefaultUserAgent, IdleBackoffInitial: time.Millisecond, IdleBackoffMax: time.Millisecond},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 1},
		Output:  config.OutputConfig{Path: filepath.Join(t.TempDir(), "site_content.json")},
		Logging: config.LoggingConfig{Level: "info"},
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a)
	a.Close()
}
