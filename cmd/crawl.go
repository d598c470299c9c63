package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/api"
	"github.com/JakeFAU/scholar-citation-crawler/internal/challenge"
	"github.com/JakeFAU/scholar-citation-crawler/internal/config"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/enrich"
	"github.com/JakeFAU/scholar-citation-crawler/internal/export"
	"github.com/JakeFAU/scholar-citation-crawler/internal/extract"
	"github.com/JakeFAU/scholar-citation-crawler/internal/hash/sha256"
	"github.com/JakeFAU/scholar-citation-crawler/internal/headless/detector"
	"github.com/JakeFAU/scholar-citation-crawler/internal/input"
	"github.com/JakeFAU/scholar-citation-crawler/internal/orchestrator"
	"github.com/JakeFAU/scholar-citation-crawler/internal/paginate"
	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
	"github.com/JakeFAU/scholar-citation-crawler/internal/progress/sinks"
	"github.com/JakeFAU/scholar-citation-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/scholar-citation-crawler/internal/session"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/gcs"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/local"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/postgres"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/sqlite"
)

type crawlOptions struct {
	input       string
	skipEnrich  bool
	progressOut io.Writer
}

func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls, enriches and exports the citations of every input title",
		Long: `Runs the full pipeline: load the titles, crawl their citers, resolve
DOIs and BibTeX records, then export the workbook, BibTeX file and report.
A checkpoint workbook is rewritten every crawl.batch_size titles, and on
interrupt, so an aborted run keeps its progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.progressOut = cmd.ErrOrStderr()
			if err := runCrawl(ctx, rt, opts); err != nil {
				if errors.Is(err, context.Canceled) {
					rt.logger.Warn("Crawl interrupted; checkpoint kept")
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "input workbook or text file (default input.path)")
	cmd.Flags().BoolVar(&opts.skipEnrich, "skip-enrich", false, "skip the Crossref and doi.org lookups")
	return cmd
}

func runCrawl(ctx context.Context, rt *runtime, opts crawlOptions) (err error) {
	cfg, e := rt.cfg, rt.env
	if opts.input != "" {
		cfg.Input.Path = opts.input
	}

	targets, err := input.Load(cfg.Input.Path, cfg.Input.Column)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no titles found in %s", cfg.Input.Path)
	}
	labels, err := cfg.Labels()
	if err != nil {
		return err
	}
	runID, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger := rt.logger.With(zap.String("run_id", runID))
	startedAt := e.clock.Now()
	skipEnrich := opts.skipEnrich || !cfg.Enrich.Enabled

	status := sinks.NewStatusSink()
	hub, err := newProgressHub(cfg, e, status, opts.progressOut, logger)
	if err != nil {
		return err
	}
	reporter := progress.NewReporter(hub, runID, e.clock)
	defer func() {
		reporter.Done(err)
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("Progress hub close failed", zap.Error(cerr))
		}
	}()

	if cfg.Server.Port > 0 {
		stopServer := serveStatus(ctx, cfg.Server.Port, status, logger)
		defer stopServer()
	}

	// Open every output before the crawl so misconfiguration fails fast.
	localStore, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
	if err != nil {
		return fmt.Errorf("open output dir: %w", err)
	}
	sink, closeSink, err := buildCheckpointSink(ctx, cfg, localStore, runID, e.clock, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	exporter, closeExporter, err := buildExporter(ctx, cfg, localStore, export.RunInfo{
		RunID:     runID,
		StartedAt: startedAt,
		Skipped:   skipEnrich,
	}, e.clock, logger)
	if err != nil {
		return err
	}
	defer closeExporter()

	sessions := session.NewManager(e.sessions(cfg, logger), e.clock, cfg.Crawl.RecycleCooldown, logger)
	handler := challenge.NewHandler(cfg.ChallengeHandlerConfig(), detector.NewHeuristic(cfg.DetectorConfig()), e.clock, logger)
	extractor := extract.NewScholar(cfg.ExtractConfig(labels))
	orch, err := orchestrator.New(cfg.OrchestratorConfig(), orchestrator.Deps{
		Sessions:  sessions,
		Extractor: extractor,
		Challenge: handler,
		Walker:    paginate.New(cfg.WalkerConfig(labels), extractor, handler, e.clock, logger),
		Sink:      sink,
		Progress:  reporter.Crawl(),
		Clock:     e.clock,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	logger.Info("Crawl starting",
		zap.Int("targets", len(targets)),
		zap.String("input", cfg.Input.Path),
		zap.String("language", cfg.Scholar.Language),
	)
	reporter.Start(len(targets))
	records, err := orch.Run(ctx, targets)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	enriched := enrich.Bare(records)
	if skipEnrich {
		logger.Info("Enrichment skipped")
	} else {
		client := enrich.NewClient(cfg.EnrichClientConfig(), e.fetcher(cfg), e.clock, logger)
		enriched, err = enrich.NewEnricher(client, reporter.Enrich(), logger).Enrich(ctx, records)
		if err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
	}

	artifacts, err := exporter.Export(ctx, enriched)
	if err != nil {
		if !errors.Is(err, export.ErrMirror) {
			return fmt.Errorf("export: %w", err)
		}
		logger.Warn("Artifact mirror incomplete", zap.Error(err))
	}
	reporter.Exported(len(artifacts))

	summary := export.Summarize(enriched)
	logger.Info("Run complete",
		zap.Int("targets", summary.Targets),
		zap.Int("with_citations", summary.WithCitations),
		zap.Int("citers", summary.Citers),
		zap.Int("bibtex", summary.BibTeX),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

func newProgressHub(cfg config.Config, e *env, status *sinks.StatusSink, out io.Writer, logger *zap.Logger) (*progress.Hub, error) {
	prom, err := sinks.NewPrometheusSink(e.registerer)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger), prom, status}
	if cfg.Output.Progress && out != nil {
		hubSinks = append(hubSinks, sinks.NewTerminalSink(out))
	}
	return progress.NewHub(progress.Config{Logger: logger}, hubSinks...), nil
}

// serveStatus runs the status API until ctx ends or the returned func is
// called.
func serveStatus(ctx context.Context, port int, status *sinks.StatusSink, logger *zap.Logger) func() {
	srvCtx, cancel := context.WithCancel(ctx)
	server := api.NewServer(status, map[string]api.Check{
		"run": func(context.Context) error {
			if status.Snapshot().State == sinks.StateIdle {
				return errors.New("run not started")
			}
			return nil
		},
	}, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.ListenAndServe(srvCtx, fmt.Sprintf(":%d", port)); err != nil {
			logger.Error("Status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// buildCheckpointSink writes checkpoints to the output workbook and to every
// configured mirror. The returned func releases mirror connections.
func buildCheckpointSink(
	ctx context.Context,
	cfg config.Config,
	store crawler.BlobStore,
	runID string,
	clock crawler.Clock,
	logger *zap.Logger,
) (crawler.ResultSink, func(), error) {
	primary, err := export.NewCheckpointSink(store, cfg.Output.Workbook)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Checkpoint mirror close failed", zap.Error(err))
			}
		}
	}

	fan := export.Fanout{primary}
	if cfg.DB.SQLitePath != "" {
		db, err := sqlite.Open(ctx, cfg.DB.SQLitePath, runID, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite mirror: %w", err)
		}
		closers = append(closers, db.Close)
		fan = append(fan, db)
	}
	if cfg.DB.PostgresDSN != "" {
		pg, err := postgres.NewCheckpointStore(ctx, postgres.Config{DSN: cfg.DB.PostgresDSN, Table: cfg.DB.Table}, runID, clock)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open postgres mirror: %w", err)
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		fan = append(fan, pg)
	}

	var sink crawler.ResultSink = fan
	if len(fan) == 1 {
		sink = primary
	}
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsub.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open pubsub: %w", err)
		}
		closers = append(closers, pub.Close)
		sink = export.NewNotifyingSink(sink, pub, cfg.PubSub.Topic, runID, clock, logger)
	}
	return sink, closeAll, nil
}

// buildExporter writes the final artifacts to the output dir and, when a
// bucket is configured, mirrors them under storage.prefix/<run id>.
func buildExporter(
	ctx context.Context,
	cfg config.Config,
	store crawler.BlobStore,
	info export.RunInfo,
	clock crawler.Clock,
	logger *zap.Logger,
) (*export.Exporter, func(), error) {
	stores := []crawler.BlobStore{store}
	closeFn := func() {}
	if cfg.Storage.GCSBucket != "" {
		bucket, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs mirror: %w", err)
		}
		stores = append(stores, bucket)
		closeFn = func() {
			if err := bucket.Close(); err != nil {
				logger.Warn("GCS client close failed", zap.Error(err))
			}
		}
	}

	exporter, err := export.NewExporter(export.Options{
		Names: export.Names{
			Workbook: cfg.Output.Workbook,
			BibTeX:   cfg.Output.BibTeX,
			Report:   cfg.Output.Report,
		},
		Prefix: info.RunID,
		Run:    info,
	}, sha256.New(), clock, logger, stores...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return exporter, closeFn, nil
}
