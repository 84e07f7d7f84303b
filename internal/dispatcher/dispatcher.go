// Package dispatcher coordinates one crawl: it seeds a fresh frontier and
// ledger, fans the per-URL pipeline out to a fixed pool of workers and
// collects the accepted records once the frontier drains.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitescrape/internal/clock/system"
	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/id/uuid"
	"github.com/JakeFAU/sitescrape/internal/metrics"
	queuememory "github.com/JakeFAU/sitescrape/internal/queue/memory"
	storagememory "github.com/JakeFAU/sitescrape/internal/storage/memory"
	"github.com/JakeFAU/sitescrape/internal/worker"
)

// Dispatcher runs crawls. It holds no per-crawl state, so Crawl may be called
// repeatedly.
type Dispatcher struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	hasher    crawler.Hasher
	idGen     crawler.IDGenerator
	clock     crawler.Clock
	cfg       crawler.Config
	logger    *zap.Logger
}

// New creates a Dispatcher. A nil idGen, clock or logger falls back to the
// UUIDv7 generator, the system clock and a no-op logger.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	hasher crawler.Hasher,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	cfg crawler.Config,
	logger *zap.Logger,
) *Dispatcher {
	if idGen == nil {
		idGen = uuid.NewGenerator()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	metrics.Init()
	return &Dispatcher{
		fetcher:   fetcher,
		extractor: extractor,
		hasher:    hasher,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl walks every reachable page of startURL's domain and returns the
// accepted records in completion order. If ctx ends first, the partial result
// is returned together with the context error.
func (d *Dispatcher) Crawl(ctx context.Context, startURL string) (crawler.Result, error) {
	seed, domain, err := crawler.SeedURL(startURL)
	if err != nil {
		return crawler.Result{}, err
	}
	runID, err := d.idGen.NewID()
	if err != nil {
		return crawler.Result{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := d.logger.With(zap.String("run_id", runID), zap.String("domain", domain))

	frontier := queuememory.NewFrontier()
	collector := storagememory.NewCollector(d.cfg.MaxPages)
	shared := worker.Shared{
		Frontier:  frontier,
		Ledger:    storagememory.NewLedger(),
		Collector: collector,
		State:     crawler.NewStateTracker(),
		Counters:  &worker.Counters{},
	}
	frontier.Push(seed)

	result := crawler.Result{
		RunID:     runID,
		StartURL:  seed,
		Domain:    domain,
		StartedAt: d.clock.Now(),
	}
	logger.Info("crawl started",
		zap.String("start_url", seed),
		zap.Int("workers", d.cfg.Workers),
		zap.Int("max_pages", d.cfg.MaxPages),
	)

	wcfg := worker.Config{
		Domain:             domain,
		Identity:           d.cfg.Identity(domain),
		RequestTimeout:     d.cfg.RequestTimeout,
		IdleBackoffInitial: d.cfg.IdleBackoffInitial,
		IdleBackoffMax:     d.cfg.IdleBackoffMax,
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range d.cfg.Workers {
		w := worker.New(shared, d.fetcher, d.extractor, d.hasher, wcfg, logger.Named("worker").With(zap.Int("index", i)))
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	runErr := g.Wait()

	result.State = shared.State.Finish(ctx.Err() != nil)
	result.Pages = collector.Pages()
	result.Stats = shared.Counters.Snapshot()
	result.FinishedAt = d.clock.Now()
	metrics.ObserveCrawl(string(result.State))
	metrics.SetFrontierPending(0)

	logger.Info("crawl finished",
		zap.String("state", string(result.State)),
		zap.Int("pages", len(result.Pages)),
		zap.Int("claimed", result.Stats.Claimed),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("duplicates", result.Stats.Duplicates),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl interrupted: %w", err)
	}
	if runErr != nil {
		return result, fmt.Errorf("crawl workers: %w", runErr)
	}
	return result, nil
}
