// Package cmd defines the sitescrape command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/app"
	"github.com/JakeFAU/sitescrape/internal/config"
	"github.com/JakeFAU/sitescrape/internal/logging"
)

// runner is what the command drives; tests swap newRunner for a fake.
type runner interface {
	Run(ctx context.Context, startURL string) (app.Summary, error)
	Close()
}

var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitescrape [flags] <start-url>",
		Short: "Crawl one website and save every page's content as JSON.",
		Long: `sitescrape crawls every page reachable from the start URL without leaving
its domain. For each page it extracts the title, meta description, visible
text, image links and downloadable file links, drops pages whose text was
already seen under another URL, and writes the result as a JSON array.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runScrape(cmd, cfgFile, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./sitescrape.yaml if present)")
	flags.IntP("workers", "w", 8, "number of concurrent fetch workers")
	flags.IntP("max-pages", "n", 0, "stop after this many accepted pages (0 = unlimited)")
	flags.Int("timeout", 15, "per-request timeout in seconds")
	flags.StringP("output", "o", "site_content.json", "output file path or gs://bucket/object")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	flags.Bool("dev", false, "human-readable debug logging")

	return cmd
}

func runScrape(cmd *cobra.Command, cfgFile, startURL string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := cmd.Context()
	r, err := newRunner(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer r.Close()

	summary, err := r.Run(ctx, startURL)
	if summary.Location != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Done. %d pages saved to %s\n", len(summary.Result.Pages), summary.Location)
	}
	return err
}

// Execute runs the root command and returns the process exit code. SIGINT and
// SIGTERM cancel the crawl; whatever was collected is still written.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
