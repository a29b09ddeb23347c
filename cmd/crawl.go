package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/api"
	"github.com/veganvoyager/venue-crawler/internal/config"
	"github.com/veganvoyager/venue-crawler/internal/crawler"
	"github.com/veganvoyager/venue-crawler/internal/export"
	"github.com/veganvoyager/venue-crawler/internal/extract"
	"github.com/veganvoyager/venue-crawler/internal/fetch"
	"github.com/veganvoyager/venue-crawler/internal/logging"
	"github.com/veganvoyager/venue-crawler/internal/progress"
	"github.com/veganvoyager/venue-crawler/internal/progress/sinks"
	"github.com/veganvoyager/venue-crawler/internal/schema"
	"github.com/veganvoyager/venue-crawler/internal/storage/local"
	"github.com/veganvoyager/venue-crawler/internal/storage/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every configured city and writes result artifacts",
		Long: `Fetches each configured city's listing pages in order, validates the
extracted venue records, and writes one JSON artifact plus one CSV
extract per city, followed by a run summary.`,
		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Cities) == 0 {
		return errors.New("no cities configured; add a cities list to the config file")
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	storeSink := sinks.NewStoreSink()
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		storeSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(storeSink, registry, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status server listening", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
		Headers:   cfg.HTTP.Headers,
	}, logger)

	if cfg.Output.SaveSnapshots {
		snapshots, err := local.New(local.Config{BaseDir: cfg.Output.SnapshotDir})
		if err != nil {
			return fmt.Errorf("init snapshot store: %w", err)
		}
		fetcher.SetBodyObserver(snapshotObserver(ctx, snapshots, logger))
	}

	extractor := extract.NewPageExtractor(cfg.Selectors, schema.NewValidator(), logger)
	engine := crawler.New(fetcher, extractor, cfg.CrawlerSettings(), logger, hub)

	logger.Info("starting crawl",
		zap.String("run_id", engine.RunID().String()),
		zap.Int("cities", len(cfg.Cities)),
	)

	batch, crawlErr := engine.CrawlBatch(ctx, cfg.Cities)

	if cfg.Crawler.CompletenessMin > 0 {
		flagBatch(&batch, cfg.Crawler.CompletenessMin, logger)
	}

	exporter, err := export.New(cfg.Output.Dir, logger)
	if err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}
	if err := exporter.WriteBatch(batch); err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	if cfg.DB.DSN != "" {
		if err := persistBatch(ctx, cfg, batch, logger); err != nil {
			return err
		}
	}

	stats := crawler.Summarize(batch)
	logger.Info("crawl finished",
		zap.Int("cities", stats.Cities),
		zap.Int("failed_cities", stats.FailedCities),
		zap.Int("venues", stats.Venues),
		zap.Int("pages", stats.Pages),
		zap.Int("errors", stats.Errors),
		zap.Int("low_completeness", stats.LowCompleteness),
		zap.Any("by_category", stats.ByCategory),
		zap.Any("by_price_range", stats.ByPriceRange),
		zap.Float64("avg_rating", stats.AvgRating),
		zap.Int("top_rated", stats.TopRated),
		zap.Int("with_coordinates", stats.WithCoordinates),
		zap.Int("with_phone", stats.WithPhone),
		zap.Int("open_now", stats.OpenNow),
	)

	if crawlErr != nil && !errors.Is(crawlErr, context.Canceled) {
		return fmt.Errorf("crawl: %w", crawlErr)
	}
	return nil
}

// flagBatch counts kept records below the completeness floor. The floor is
// reporting guidance, not a drop rule: every validated record stays in the
// artifacts, and the under-threshold count travels with the summary.
func flagBatch(batch *crawler.BatchResult, minimum float64, logger *zap.Logger) {
	for i := range batch.Results {
		result := &batch.Results[i]
		low := 0
		for _, venue := range result.Venues {
			if venue.ScrapingInfo.DataCompleteness < minimum {
				low++
			}
		}
		result.LowCompleteness = low
		if low > 0 {
			logger.Warn("records below completeness floor",
				zap.String("city", result.City),
				zap.Int("below", low),
				zap.Float64("minimum", minimum),
			)
		}
	}
}

func persistBatch(ctx context.Context, cfg config.Config, batch crawler.BatchResult, logger *zap.Logger) error {
	store, err := postgres.NewVenueStore(ctx, postgres.VenueStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return fmt.Errorf("init venue store: %w", err)
	}
	defer store.Close()

	for _, result := range batch.Results {
		if err := store.UpsertVenues(ctx, batch.RunID, result.City, result.Venues); err != nil {
			return fmt.Errorf("persist %s venues: %w", result.City, err)
		}
		logger.Info("persisted city venues",
			zap.String("city", result.City),
			zap.Int("venues", len(result.Venues)),
		)
	}
	return nil
}

// snapshotObserver derives the city directory from the URL path and the
// page number from the page query parameter.
func snapshotObserver(ctx context.Context, store *local.SnapshotStore, logger *zap.Logger) fetch.BodyObserver {
	return func(pageURL string, body []byte) {
		city, page := snapshotKey(pageURL)
		if _, err := store.Put(ctx, city, page, bytes.NewReader(body)); err != nil {
			logger.Warn("snapshot write failed",
				zap.String("url", pageURL),
				zap.Error(err),
			)
		}
	}
}

func snapshotKey(pageURL string) (string, int) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "unknown", 1
	}
	city := "unknown"
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			city = seg
		}
	}
	page := 1
	if raw := u.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	return city, page
}
