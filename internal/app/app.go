// Package app wires the scraper's long-lived services from configuration and
// runs one crawl end to end: crawl, write the JSON document, then the optional
// Postgres rows and Pub/Sub event.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/config"
	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/dispatcher"
	"github.com/JakeFAU/sitescrape/internal/extract"
	collyfetcher "github.com/JakeFAU/sitescrape/internal/fetcher/colly"
	"github.com/JakeFAU/sitescrape/internal/hash/sha256"
	"github.com/JakeFAU/sitescrape/internal/metrics"
	"github.com/JakeFAU/sitescrape/internal/output"
	"github.com/JakeFAU/sitescrape/internal/publisher/pubsub"
	"github.com/JakeFAU/sitescrape/internal/storage/postgres"
)

// Crawler runs one crawl.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) (crawler.Result, error)
}

// ResultWriter persists the accepted pages and reports where they went.
type ResultWriter interface {
	Write(ctx context.Context, pages []crawler.PageRecord) (string, error)
	Close() error
}

// Services are the collaborators an App drives. Pages and Publisher are optional.
type Services struct {
	Crawler   Crawler
	Output    ResultWriter
	Pages     crawler.PageStore
	Publisher crawler.Publisher
}

// Summary is what a finished run reports back to the CLI.
type Summary struct {
	Result   crawler.Result
	Location string
}

// App holds the shared services for one invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	services Services
}

// New builds every service the configuration asks for. It fails fast if an
// enabled backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.RequestTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	services := Services{
		Crawler: dispatcher.New(fetcher, extract.New(), sha256.New(), nil, nil, cfg.CrawlerConfig(), logger.Named("dispatcher")),
	}

	out, err := output.Open(ctx, cfg.Output.Path, cfg.Output.ContentType)
	if err != nil {
		return nil, fmt.Errorf("init output: %w", err)
	}
	services.Output = out

	a := &App{cfg: cfg, logger: logger, services: services}

	if cfg.Postgres.DSN != "" {
		store, err := postgres.NewPageStore(ctx, postgres.PageStoreConfig{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: int32(cfg.Postgres.MaxConns), //nolint:gosec // validated > 0 and small
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.services.Pages = store
		if err := store.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		logger.Info("postgres page sink enabled", zap.String("table", cfg.Postgres.Table))
	}

	if cfg.PubSub.Topic != "" {
		pub, err := pubsub.Open(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.services.Publisher = pub
		logger.Info("pubsub completion events enabled", zap.String("topic", cfg.PubSub.Topic))
	}

	return a, nil
}

// NewWithServices builds an App around already constructed services.
func NewWithServices(cfg config.Config, logger *zap.Logger, services Services) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, services: services}
}

// Run crawls startURL and persists the result. A canceled crawl still writes
// its partial result; the cancellation error is returned alongside the summary.
func (a *App) Run(ctx context.Context, startURL string) (Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(runCtx, a.cfg.Metrics.Addr, a.logger.Named("metrics")); err != nil {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	result, crawlErr := a.services.Crawler.Crawl(runCtx, startURL)
	if crawlErr != nil && !interrupted(crawlErr) {
		return Summary{}, fmt.Errorf("crawl %s: %w", startURL, crawlErr)
	}
	if crawlErr != nil {
		a.logger.Warn("crawl interrupted, saving partial result", zap.Int("pages", len(result.Pages)))
	}

	persistCtx := context.WithoutCancel(ctx)
	location, err := a.services.Output.Write(persistCtx, result.Pages)
	if err != nil {
		return Summary{Result: result}, err //nolint:wrapcheck
	}
	summary := Summary{Result: result, Location: location}
	logger := a.logger.With(zap.String("run_id", result.RunID))
	logger.Info("output written", zap.String("location", location), zap.Int("pages", len(result.Pages)))

	if a.services.Pages != nil {
		if err := a.savePages(persistCtx, result); err != nil {
			logger.Error("postgres sink failed", zap.Error(err))
		}
	}
	if a.services.Publisher != nil {
		event := crawler.NewCompletedEvent(result, location)
		id, err := a.services.Publisher.Publish(persistCtx, a.cfg.PubSub.Topic, event)
		if err != nil {
			logger.Warn("completion event not published", zap.Error(err))
		} else {
			logger.Info("completion event published", zap.String("message_id", id))
		}
	}

	return summary, crawlErr
}

func (a *App) savePages(ctx context.Context, result crawler.Result) error {
	if err := a.services.Pages.SavePages(ctx, result.RunID, result.Pages); err != nil {
		return err //nolint:wrapcheck
	}
	if err := a.services.Pages.SaveRun(ctx, result); err != nil {
		return err //nolint:wrapcheck
	}
	return nil
}

// Close shuts down every service that holds a connection.
func (a *App) Close() {
	if a.services.Output != nil {
		if err := a.services.Output.Close(); err != nil {
			a.logger.Warn("error closing output", zap.Error(err))
		}
	}
	if a.services.Pages != nil {
		a.services.Pages.Close()
	}
	if c, ok := a.services.Publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
