// Package worker implements the per-URL crawl pipeline: claim, fetch,
// extract, deduplicate, collect and discover.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// Domain is the host[:port] every followed link must match.
	Domain string
	// Identity is sent as the User-Agent header.
	Identity           string
	RequestTimeout     time.Duration
	IdleBackoffInitial time.Duration
	IdleBackoffMax     time.Duration
}

// Shared is the per-crawl state all workers of one run operate on.
type Shared struct {
	Frontier  crawler.Frontier
	Ledger    crawler.Ledger
	Collector crawler.Collector
	State     *crawler.StateTracker
	Counters  *Counters
}

// Counters accumulates crawl statistics across workers.
type Counters struct {
	claimed    atomic.Int64
	fetched    atomic.Int64
	skipped    atomic.Int64
	duplicates atomic.Int64
	accepted   atomic.Int64
	discovered atomic.Int64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() crawler.Stats {
	return crawler.Stats{
		Claimed:    int(c.claimed.Load()),
		Fetched:    int(c.fetched.Load()),
		Skipped:    int(c.skipped.Load()),
		Duplicates: int(c.duplicates.Load()),
		Accepted:   int(c.accepted.Load()),
		Discovered: int(c.discovered.Load()),
	}
}

// Worker pops URLs from the shared frontier until it drains.
type Worker struct {
	shared    Shared
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	hasher    crawler.Hasher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	shared Shared,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	hasher crawler.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shared.Counters == nil {
		shared.Counters = &Counters{}
	}
	if shared.State == nil {
		shared.State = crawler.NewStateTracker()
	}
	metrics.Init()
	return &Worker{
		shared:    shared,
		fetcher:   fetcher,
		extractor: extractor,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks until the frontier is drained or ctx is done. It returns the
// context error on cancellation and nil otherwise.
func (w *Worker) Run(ctx context.Context) error {
	backoff := crawler.NewIdleBackoff(w.cfg.IdleBackoffInitial, w.cfg.IdleBackoffMax)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker stopped: %w", err)
		}
		target, ok := w.shared.Frontier.Pop()
		if !ok {
			if w.shared.Frontier.IsDrained() {
				return nil
			}
			w.shared.State.MarkDraining()
			if err := sleep(ctx, backoff.Next()); err != nil {
				return fmt.Errorf("worker stopped: %w", err)
			}
			continue
		}
		backoff.Reset()
		w.shared.State.MarkRunning()
		w.processURL(ctx, target)
	}
}

func (w *Worker) processURL(ctx context.Context, target string) {
	defer w.shared.Frontier.Done()

	if !w.shared.Ledger.TryClaim(target) {
		return
	}
	w.shared.Counters.claimed.Add(1)

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	resp, err := w.fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.skip(target, err)
		return
	}
	w.shared.Counters.fetched.Add(1)

	base := resp.URL
	if base == "" {
		base = target
	}
	extraction, err := w.extractor.Extract(base, resp.Body, resp.ContentType())
	if err != nil {
		w.skip(target, fmt.Errorf("extract: %w", err))
		return
	}
	record := extraction.Record
	record.URL = target

	if err := w.collect(record); err != nil {
		w.skip(target, err)
		return
	}
	w.discover(base, extraction.Links)
}

func (w *Worker) fetch(ctx context.Context, target string) (crawler.FetchResponse, error) {
	headers := http.Header{}
	if w.cfg.Identity != "" {
		headers.Set("User-Agent", w.cfg.Identity)
	}
	resp, err := w.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     target,
		Headers: headers,
		Timeout: w.cfg.RequestTimeout,
	})
	metrics.ObserveFetch(target, err == nil, len(resp.Body), resp.Duration)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch: %w", err)
	}
	w.logger.Debug("fetched", zap.String("url", target), zap.Int("status", resp.StatusCode), zap.Duration("duration", resp.Duration))
	return resp, nil
}

// collect fingerprints the record and hands it to the collector unless the
// same text was already accepted.
func (w *Worker) collect(record crawler.PageRecord) error {
	fingerprint, err := w.hasher.Hash([]byte(record.Text))
	if err != nil {
		return fmt.Errorf("hash text: %w", err)
	}
	if !w.shared.Ledger.TryAcceptFingerprint(fingerprint) {
		w.shared.Counters.duplicates.Add(1)
		metrics.ObservePage(record.URL, metrics.OutcomeDuplicate)
		w.logger.Debug("duplicate content", zap.String("url", record.URL), zap.String("fingerprint", fingerprint))
		return nil
	}

	accepted, reachedCap := w.shared.Collector.Add(record)
	if !accepted {
		metrics.ObservePage(record.URL, metrics.OutcomeCapped)
		return nil
	}
	w.shared.Counters.accepted.Add(1)
	metrics.ObservePage(record.URL, metrics.OutcomeAccepted)
	w.logger.Debug("page accepted", zap.String("url", record.URL))

	if reachedCap {
		w.shared.Frontier.Close()
		if w.shared.State.MarkCapped() {
			w.logger.Info("page cap reached", zap.String("url", record.URL))
		}
	}
	return nil
}

func (w *Worker) discover(base string, links []string) {
	for _, href := range links {
		next, ok := crawler.NormalizeURL(href, base, w.cfg.Domain)
		if !ok || w.shared.Ledger.IsClaimed(next) {
			continue
		}
		if w.shared.Frontier.Push(next) {
			w.shared.Counters.discovered.Add(1)
		}
	}
	metrics.SetFrontierPending(w.shared.Frontier.Len())
}

func (w *Worker) skip(target string, err error) {
	w.shared.Counters.skipped.Add(1)
	metrics.ObservePage(target, metrics.OutcomeSkipped)
	w.logger.Warn("skip", zap.String("url", target), zap.Error(err))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
