package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/baxromumarov/catalog-scraper/internal/api"
	"github.com/baxromumarov/catalog-scraper/internal/config"
	"github.com/baxromumarov/catalog-scraper/internal/core"
	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/logging"
	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
	"github.com/baxromumarov/catalog-scraper/internal/pipeline"
	"github.com/baxromumarov/catalog-scraper/internal/scraper"
	"github.com/baxromumarov/catalog-scraper/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SCRAPER_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	observability.RegisterMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		products api.ProductLister
		sink     core.Sink
		pruner   core.Pruner
	)
	if cfg.Store.DatabaseURL != "" {
		dbStore, err := store.NewStore(cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to store", "error", err)
			os.Exit(1)
		}
		defer dbStore.Close()

		if err := dbStore.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		products, sink, pruner = dbStore, dbStore, dbStore
	} else {
		slog.Warn("no database configured, emitted records are not persisted")
	}

	var seen func(string) pipeline.SeenSet
	if cfg.Dedup.Backend == config.DedupRedis {
		opts, err := redis.ParseURL(cfg.Dedup.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		seen = func(runID string) pipeline.SeenSet {
			return pipeline.NewRedisSeenSet(client, cfg.Dedup.Prefix, runID, cfg.Dedup.TTL)
		}
	}

	var extractor scraper.Extractor
	if cfg.Crawl.Engine == config.EngineDocument {
		extractor = scraper.NewDocumentScraper(httpx.NewPoliteClient(cfg.HTTP()), cfg.Catalog.BaseURL)
	} else {
		extractor = scraper.NewCatalogScraper(httpx.NewCollyFetcher(cfg.HTTP()))
	}

	crawler := core.NewCrawlService(
		extractor,
		normalize.New(cfg.Normalizer()),
		cfg.Pipeline(),
		sink,
		core.CrawlOptions{Workers: cfg.Crawl.Workers, MaxPages: cfg.Crawl.MaxPages, SeenSet: seen},
	)

	scheduler := core.NewSchedulerService(crawler, pruner, core.ScheduleOptions{
		StartURL:      cfg.Catalog.StartURL,
		CrawlInterval: cfg.Crawl.Interval,
		Retention:     cfg.Store.Retention,
	})
	scheduler.Start(ctx)

	srv := api.NewServer(ctx, products, crawler, api.Options{
		DefaultStartURL: cfg.Catalog.StartURL,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
