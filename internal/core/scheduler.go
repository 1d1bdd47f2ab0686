package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Pruner deletes stored products that were not seen for longer than olderThan.
type Pruner interface {
	DeleteOldProducts(ctx context.Context, olderThan time.Duration) (int64, error)
}

type ScheduleOptions struct {
	StartURL      string
	CrawlInterval time.Duration
	// Retention of zero disables pruning.
	Retention time.Duration
}

type SchedulerService struct {
	crawler *CrawlService
	pruner  Pruner
	opts    ScheduleOptions
}

func NewSchedulerService(crawler *CrawlService, pruner Pruner, opts ScheduleOptions) *SchedulerService {
	return &SchedulerService{crawler: crawler, pruner: pruner, opts: opts}
}

func (s *SchedulerService) Start(ctx context.Context) {
	if s.crawler != nil && s.opts.CrawlInterval > 0 {
		go s.every(ctx, s.opts.CrawlInterval, s.crawlOnce)
	}
	if s.pruner != nil && s.opts.Retention > 0 {
		go s.every(ctx, 24*time.Hour, s.cleanup)
	}
}

// every runs fn immediately, then on each tick until ctx is done.
func (s *SchedulerService) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *SchedulerService) crawlOnce(ctx context.Context) {
	summary, err := s.crawler.Run(ctx, s.opts.StartURL)
	if errors.Is(err, ErrCrawlRunning) {
		slog.Info("scheduled crawl skipped, previous run still active")
		return
	}
	if err != nil {
		slog.Error("scheduled crawl failed", "run_id", summary.RunID, "pages", summary.Pages, "error", err)
	}
}

func (s *SchedulerService) cleanup(ctx context.Context) {
	count, err := s.pruner.DeleteOldProducts(ctx, s.opts.Retention)
	if err != nil {
		slog.Error("retention policy: failed to delete old products", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention policy: deleted old products", "count", count)
	}
}
