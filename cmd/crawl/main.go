package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/baxromumarov/catalog-scraper/internal/config"
	"github.com/baxromumarov/catalog-scraper/internal/core"
	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/logging"
	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
	"github.com/baxromumarov/catalog-scraper/internal/pipeline"
	"github.com/baxromumarov/catalog-scraper/internal/scraper"
	"github.com/baxromumarov/catalog-scraper/internal/sink"
	"github.com/baxromumarov/catalog-scraper/internal/store"
)

type flags struct {
	configPath      string
	startURL        string
	out             string
	engine          string
	file            string
	numericDiscount bool
	workers         int
	maxPages        int
	db              string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "crawl",
		Short:         "Crawl a paginated product catalog and emit normalized records",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := run(ctx, cmd, f)
			if err != nil {
				slog.Error("crawl failed", "error", err)
			}
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.startURL, "start-url", "", "first catalog page (default from config)")
	fs.StringVarP(&f.out, "out", "o", "products.jsonl", "JSON Lines output file, empty to disable")
	fs.StringVar(&f.engine, "engine", "", "extraction engine: colly or document")
	fs.StringVar(&f.file, "file", "", "parse a saved catalog page instead of crawling")
	fs.BoolVar(&f.numericDiscount, "numeric-discount", false, "keep only the number of discount labels")
	fs.IntVar(&f.workers, "workers", 0, "records processed concurrently per page")
	fs.IntVar(&f.maxPages, "max-pages", -1, "stop after this many pages, 0 for no cap")
	fs.StringVar(&f.db, "db", "", "Postgres URL; emitted records are also upserted there")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, f *flags) error {
	_ = godotenv.Load()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, cfg)
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	observability.RegisterMetrics(nil)

	startURL := cfg.Catalog.StartURL
	if f.file != "" {
		abs, err := filepath.Abs(f.file)
		if err != nil {
			return fmt.Errorf("resolve file path: %w", err)
		}
		startURL = "file://" + abs
		cfg.Crawl.Engine = config.EngineDocument
		cfg.Crawl.MaxPages = 1
	}

	sinks := sink.Multi{}
	if f.out != "" {
		out, err := sink.OpenJSONLines(f.out)
		if err != nil {
			return err
		}
		defer func() {
			if err := out.Close(); err != nil {
				slog.Error("failed to close output", "path", f.out, "error", err)
			}
		}()
		sinks = append(sinks, out)
	}
	if cfg.Store.DatabaseURL != "" {
		db, err := store.NewStore(cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		sinks = append(sinks, db)
	}

	seen, closeSeen, err := seenSetFactory(cfg)
	if err != nil {
		return err
	}
	defer closeSeen()

	svc := core.NewCrawlService(
		newExtractor(cfg),
		normalize.New(cfg.Normalizer()),
		cfg.Pipeline(),
		sinks,
		core.CrawlOptions{Workers: cfg.Crawl.Workers, MaxPages: cfg.Crawl.MaxPages, SeenSet: seen},
	)

	summary, runErr := svc.Run(ctx, startURL)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		slog.Warn("failed to print summary", "error", err)
	}
	return runErr
}

func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	fs := cmd.Flags()
	if f.startURL != "" {
		cfg.Catalog.StartURL = f.startURL
	}
	if f.engine != "" {
		cfg.Crawl.Engine = f.engine
	}
	if fs.Changed("numeric-discount") {
		cfg.Catalog.NumericDiscount = f.numericDiscount
	}
	if f.workers > 0 {
		cfg.Crawl.Workers = f.workers
	}
	if f.maxPages >= 0 {
		cfg.Crawl.MaxPages = f.maxPages
	}
	if f.db != "" {
		cfg.Store.DatabaseURL = f.db
	}
}

func newExtractor(cfg *config.Config) scraper.Extractor {
	if cfg.Crawl.Engine == config.EngineDocument {
		return scraper.NewDocumentScraper(httpx.NewPoliteClient(cfg.HTTP()), cfg.Catalog.BaseURL)
	}
	return scraper.NewCatalogScraper(httpx.NewCollyFetcher(cfg.HTTP()))
}

// seenSetFactory returns the per-run dedup state builder and a cleanup func.
func seenSetFactory(cfg *config.Config) (func(string) pipeline.SeenSet, func(), error) {
	if cfg.Dedup.Backend != config.DedupRedis {
		return nil, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Dedup.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	factory := func(runID string) pipeline.SeenSet {
		return pipeline.NewRedisSeenSet(client, cfg.Dedup.Prefix, runID, cfg.Dedup.TTL)
	}
	return factory, func() { _ = client.Close() }, nil
}
