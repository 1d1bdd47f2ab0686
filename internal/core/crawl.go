package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
	"github.com/baxromumarov/catalog-scraper/internal/pipeline"
	"github.com/baxromumarov/catalog-scraper/internal/product"
	"github.com/baxromumarov/catalog-scraper/internal/scraper"
	"github.com/baxromumarov/catalog-scraper/internal/urlutil"
)

const componentCrawl = "crawl"

// ErrCrawlRunning is returned when a run is requested while another one is active.
var ErrCrawlRunning = errors.New("crawl already running")

// Sink receives every record that passed the pipeline. Implementations must be
// safe for concurrent use.
type Sink interface {
	Save(ctx context.Context, rec *product.Record) error
}

type CrawlOptions struct {
	// Workers bounds the records processed concurrently within one page.
	Workers int
	// MaxPages stops pagination after this many pages. Zero means no cap.
	MaxPages int
	// SeenSet builds the dedup state of a run. Defaults to an in-memory set.
	SeenSet func(runID string) pipeline.SeenSet
}

// RunSummary is the outcome of one crawl.
type RunSummary struct {
	RunID         string         `json:"run_id"`
	StartURL      string         `json:"start_url"`
	LastURL       string         `json:"last_url"`
	Pages         int            `json:"pages"`
	Extracted     int            `json:"extracted"`
	Emitted       int            `json:"emitted"`
	Dropped       int            `json:"dropped"`
	SinkErrors    int            `json:"sink_errors"`
	DropsByReason map[string]int `json:"drops_by_reason"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// CrawlService walks a paginated catalog: extract a page, normalize each raw
// record, run it through the pipeline and hand survivors to the sink.
type CrawlService struct {
	extractor  scraper.Extractor
	normalizer *normalize.Normalizer
	cfg        pipeline.Config
	sink       Sink
	opts       CrawlOptions

	running atomic.Bool
	mu      sync.Mutex
	last    *RunSummary
}

func NewCrawlService(extractor scraper.Extractor, normalizer *normalize.Normalizer, cfg pipeline.Config, sink Sink, opts CrawlOptions) *CrawlService {
	if normalizer == nil {
		normalizer = normalize.New(normalize.Options{})
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SeenSet == nil {
		opts.SeenSet = func(string) pipeline.SeenSet { return pipeline.NewMemorySeenSet() }
	}
	return &CrawlService{
		extractor:  extractor,
		normalizer: normalizer,
		cfg:        cfg,
		sink:       sink,
		opts:       opts,
	}
}

// Running reports whether a run is in progress.
func (s *CrawlService) Running() bool {
	return s.running.Load()
}

// LastRun returns the summary of the most recently finished run.
func (s *CrawlService) LastRun() (RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunSummary{}, false
	}
	return *s.last, true
}

// Run crawls from startURL until the last page, the page cap, or an error.
// On error the partial summary is returned with it.
func (s *CrawlService) Run(ctx context.Context, startURL string) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrCrawlRunning
	}
	defer s.running.Store(false)
	return s.run(ctx, uuid.NewString(), startURL)
}

// Start launches a run in the background and returns its id.
func (s *CrawlService) Start(ctx context.Context, startURL string) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrCrawlRunning
	}
	runID := uuid.NewString()
	go func() {
		defer s.running.Store(false)
		if _, err := s.run(ctx, runID, startURL); err != nil {
			slog.Error("crawl failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

func (s *CrawlService) run(ctx context.Context, runID, startURL string) (RunSummary, error) {
	t := &tally{drops: map[string]int{}}
	summary := RunSummary{RunID: runID, StartURL: startURL, StartedAt: time.Now()}
	pipe := pipeline.Default(s.cfg, s.opts.SeenSet(runID))

	slog.Info("crawl started", "run_id", runID, "url", startURL, "workers", s.opts.Workers)
	err := s.walk(ctx, runID, startURL, pipe, t, &summary)

	summary.FinishedAt = time.Now()
	t.fill(&summary)
	observability.ObserveCrawlDuration(componentCrawl, summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	if err != nil {
		observability.IncError(observability.ClassifyScrapeError(err), componentCrawl)
		return summary, err
	}
	slog.Info("crawl finished",
		"run_id", runID,
		"pages", summary.Pages,
		"extracted", summary.Extracted,
		"emitted", summary.Emitted,
		"dropped", summary.Dropped,
	)
	return summary, nil
}

func (s *CrawlService) walk(ctx context.Context, runID, startURL string, pipe *pipeline.Pipeline, t *tally, summary *RunSummary) error {
	visited := map[string]struct{}{}
	pageURL := startURL

	for pageURL != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.opts.MaxPages > 0 && summary.Pages >= s.opts.MaxPages {
			slog.Info("page cap reached", "run_id", runID, "max_pages", s.opts.MaxPages)
			return nil
		}
		key := visitKey(pageURL)
		if _, seen := visited[key]; seen {
			slog.Warn("pagination revisits a page, stopping", "run_id", runID, "url", pageURL)
			return nil
		}
		visited[key] = struct{}{}

		page, err := s.extractor.ExtractPage(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("extract %s: %w", pageURL, err)
		}
		summary.Pages++
		summary.Extracted += len(page.Records)
		summary.LastURL = pageURL
		observability.AddRecordsExtracted(len(page.Records))
		slog.Info("found products", "run_id", runID, "count", len(page.Records), "url", pageURL)

		if err := s.processPage(ctx, runID, pipe, page.Records, t); err != nil {
			return err
		}

		if page.NextURL == "" {
			slog.Info("reached last page", "run_id", runID, "url", pageURL)
			return nil
		}
		pageURL = page.NextURL
	}
	return nil
}

func (s *CrawlService) processPage(ctx context.Context, runID string, pipe *pipeline.Pipeline, records []product.RawRecord, t *tally) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, raw := range records {
		raw := raw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.processRecord(gctx, runID, pipe, raw, t)
			return nil
		})
	}
	return g.Wait()
}

func (s *CrawlService) processRecord(ctx context.Context, runID string, pipe *pipeline.Pipeline, raw product.RawRecord, t *tally) {
	rec := s.normalizer.Build(raw)

	res := pipe.Run(ctx, &rec)
	if res.Dropped() {
		slog.Warn("dropped record",
			"run_id", runID,
			"stage", res.Drop.Stage,
			"reason", res.Drop.Reason,
			"product", rec.Label(),
		)
		observability.IncRecordDropped(res.Drop.Stage, dropKey(res.Drop))
		t.drop(dropKey(res.Drop))
		return
	}

	if s.sink != nil {
		if err := s.sink.Save(ctx, res.Record); err != nil {
			slog.Error("failed to save record", "run_id", runID, "product", res.Record.Label(), "error", err)
			observability.IncError(observability.ErrorSink, componentCrawl)
			t.sinkErrors.Add(1)
			return
		}
	}
	observability.IncRecordsEmitted()
	t.emitted.Add(1)
}

// dropKey groups validation drops under one reason regardless of the fields.
func dropKey(d *pipeline.Drop) string {
	if len(d.Fields) > 0 {
		return pipeline.ReasonMissingField
	}
	return d.Reason
}

func visitKey(pageURL string) string {
	if normalized, _, err := urlutil.Normalize(pageURL); err == nil {
		return normalized
	}
	return pageURL
}

type tally struct {
	emitted    atomic.Int64
	sinkErrors atomic.Int64

	mu      sync.Mutex
	dropped int
	drops   map[string]int
}

func (t *tally) drop(reason string) {
	t.mu.Lock()
	t.dropped++
	t.drops[reason]++
	t.mu.Unlock()
}

func (t *tally) fill(s *RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.Emitted = int(t.emitted.Load())
	s.SinkErrors = int(t.sinkErrors.Load())
	s.Dropped = t.dropped
	s.DropsByReason = make(map[string]int, len(t.drops))
	for k, v := range t.drops {
		s.DropsByReason[k] = v
	}
}
