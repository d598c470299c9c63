// Package cmd defines the citecrawler CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/clock/system"
	"github.com/JakeFAU/scholar-citation-crawler/internal/config"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/scholar-citation-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/scholar-citation-crawler/internal/headless"
	"github.com/JakeFAU/scholar-citation-crawler/internal/id/uuid"
	"github.com/JakeFAU/scholar-citation-crawler/internal/logging"
)

// env holds the collaborators that talk to the outside world. Tests swap in
// fakes.
type env struct {
	clock      crawler.Clock
	ids        crawler.IDGenerator
	sessions   func(cfg config.Config, logger *zap.Logger) crawler.SessionFactory
	fetcher    func(cfg config.Config) crawler.Fetcher
	registerer prometheus.Registerer
}

func defaultEnv() *env {
	return &env{
		clock: system.New(),
		ids:   uuid.New(),
		sessions: func(cfg config.Config, logger *zap.Logger) crawler.SessionFactory {
			return headless.NewFactory(cfg.HeadlessConfig(), logger)
		},
		fetcher: func(cfg config.Config) crawler.Fetcher {
			return collyfetcher.New(cfg.FetcherConfig())
		},
		registerer: prometheus.DefaultRegisterer,
	}
}

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	env    *env
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func newRootCmd(e *env) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "citecrawler",
		Short: "Collects the papers citing each title of a list from Google Scholar.",
		Long: `citecrawler looks up every title of an input workbook on Google Scholar,
walks its "cited by" listing and records the citing titles. Citers are then
resolved to DOIs and BibTeX records through Crossref and doi.org, and the
results are exported as a workbook, a BibTeX file and a markdown report.

Google Scholar may interrupt the crawl with a verification page. Run with
browser.headless=false so an operator can solve it in the browser window.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{
				cfg:    cfg,
				logger: logger,
				env:    e,
			}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := runtimeFrom(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./config.yaml, then "+config.Dir()+"/config.yaml)")

	cmd.AddCommand(newCrawlCmd(), newTemplateCmd(), newInspectCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(defaultEnv()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
