package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/pipeline"
	"github.com/baxromumarov/catalog-scraper/internal/product"
	"github.com/baxromumarov/catalog-scraper/internal/scraper"
)

type fakeExtractor struct {
	pages map[string]scraper.Page
	errs  map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) ExtractPage(_ context.Context, pageURL string) (scraper.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageURL)
	f.mu.Unlock()
	if err, ok := f.errs[pageURL]; ok {
		return scraper.Page{URL: pageURL}, err
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return scraper.Page{URL: pageURL}, fmt.Errorf("unexpected page %s", pageURL)
	}
	return page, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []product.Record
	fail    func(*product.Record) error
}

func (m *memorySink) Save(_ context.Context, rec *product.Record) error {
	if m.fail != nil {
		if err := m.fail(rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func raw(kv ...string) product.RawRecord {
	rec := product.RawRecord{}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Set(kv[i], kv[i+1])
	}
	return rec
}

const (
	page1URL = "https://www.jumia.co.ke/smartphones/"
	page2URL = "https://www.jumia.co.ke/smartphones/?page=2"
)

func catalog() *fakeExtractor {
	tecno := raw(
		product.FieldName, "  Tecno   Spark 20 ",
		product.FieldProductID, "TE1",
		product.FieldCurrentPrice, "KSh 15,000",
		product.FieldOriginalPrice, "KSh 20,000",
		product.FieldURL, "/tecno.html",
		product.FieldBrand, "tecno",
	)
	return &fakeExtractor{pages: map[string]scraper.Page{
		page1URL: {
			URL: page1URL,
			Records: []product.RawRecord{
				tecno,
				raw(product.FieldName, "Samsung Galaxy A15", product.FieldProductID, "SA1", product.FieldCurrentPrice, "KSh 12,500"),
			},
			NextURL: page2URL,
		},
		page2URL: {
			URL: page2URL,
			Records: []product.RawRecord{
				raw(product.FieldName, "Tecno Spark 20", product.FieldProductID, "TE1", product.FieldCurrentPrice, "KSh 15,000"),
				raw(product.FieldName, "Oppo A18", product.FieldProductID, "OP1", product.FieldCurrentPrice, "Call for price"),
				raw(product.FieldName, "Nokia 105", product.FieldCurrentPrice, "KSh 5,000"),
			},
		},
	}}
}

func TestCrawlService_Run(t *testing.T) {
	ext := catalog()
	sink := &memorySink{}
	svc := NewCrawlService(ext, normalize.New(normalize.Options{}), pipeline.DefaultConfig(), sink, CrawlOptions{})

	summary, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 5, summary.Extracted)
	assert.Equal(t, 2, summary.Emitted)
	assert.Equal(t, 3, summary.Dropped)
	assert.Equal(t, map[string]int{
		pipeline.ReasonDuplicate:    1,
		pipeline.ReasonMissingPrice: 1,
		pipeline.ReasonMissingField: 1,
	}, summary.DropsByReason)
	assert.Equal(t, page2URL, summary.LastURL)
	assert.Equal(t, []string{page1URL, page2URL}, ext.calls)

	require.Len(t, sink.records, 2)
	tecno := sink.records[0]
	assert.Equal(t, "Tecno Spark 20", tecno.Name)
	assert.Equal(t, "Tecno", tecno.Brand)
	assert.Equal(t, "https://www.jumia.co.ke/tecno.html", tecno.FullURL)
	assert.Equal(t, "2250", tecno.CurrentPrice.Decimal.String())
	assert.Equal(t, "3000", tecno.OriginalPrice.Decimal.String())
	assert.Equal(t, "750", tecno.SavingsAmount.Decimal.String())
	assert.Equal(t, "25.0%", tecno.SavingsPercent)
	assert.Equal(t, "ZAR", tecno.Currency)

	samsung := sink.records[1]
	assert.Equal(t, "1875", samsung.CurrentPrice.Decimal.String())
	assert.False(t, samsung.SavingsAmount.Valid)

	last, ok := svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, summary.RunID, last.RunID)
	assert.False(t, svc.Running())
}

func TestCrawlService_FreshDedupPerRun(t *testing.T) {
	sink := &memorySink{}
	svc := NewCrawlService(catalog(), nil, pipeline.DefaultConfig(), sink, CrawlOptions{})

	first, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Emitted, second.Emitted)
	assert.Len(t, sink.records, first.Emitted*2)
}

func TestCrawlService_PageCap(t *testing.T) {
	ext := catalog()
	svc := NewCrawlService(ext, nil, pipeline.DefaultConfig(), nil, CrawlOptions{MaxPages: 1})

	summary, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, []string{page1URL}, ext.calls)
	assert.Equal(t, 2, summary.Emitted)
}

func TestCrawlService_StopsOnPaginationLoop(t *testing.T) {
	ext := &fakeExtractor{pages: map[string]scraper.Page{
		page1URL: {URL: page1URL, NextURL: page2URL},
		page2URL: {URL: page2URL, NextURL: page1URL + "#top"},
	}}
	svc := NewCrawlService(ext, nil, pipeline.DefaultConfig(), nil, CrawlOptions{})

	summary, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
}

func TestCrawlService_ExtractErrorKeepsPartialSummary(t *testing.T) {
	ext := catalog()
	boom := errors.New("connection reset")
	ext.errs = map[string]error{page2URL: boom}
	sink := &memorySink{}
	svc := NewCrawlService(ext, nil, pipeline.DefaultConfig(), sink, CrawlOptions{})

	summary, err := svc.Run(context.Background(), page1URL)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, summary.Emitted)
	assert.Len(t, sink.records, 2)
}

func TestCrawlService_SinkErrorsAreNotFatal(t *testing.T) {
	sink := &memorySink{fail: func(rec *product.Record) error {
		if rec.ProductID == "SA1" {
			return errors.New("disk full")
		}
		return nil
	}}
	svc := NewCrawlService(catalog(), nil, pipeline.DefaultConfig(), sink, CrawlOptions{})

	summary, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, 1, summary.SinkErrors)
	assert.Len(t, sink.records, 1)
}

func TestCrawlService_ConcurrentWorkersKeepOneDuplicate(t *testing.T) {
	var records []product.RawRecord
	for i := 0; i < 50; i++ {
		records = append(records, raw(
			product.FieldName, "Same Phone",
			product.FieldProductID, fmt.Sprintf("ID%d", i),
			product.FieldCurrentPrice, "1000",
		))
	}
	ext := &fakeExtractor{pages: map[string]scraper.Page{page1URL: {URL: page1URL, Records: records}}}
	sink := &memorySink{}
	svc := NewCrawlService(ext, nil, pipeline.DefaultConfig(), sink, CrawlOptions{Workers: 8})

	summary, err := svc.Run(context.Background(), page1URL)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, 49, summary.DropsByReason[pipeline.ReasonDuplicate])
	assert.Len(t, sink.records, 1)
}

func TestCrawlService_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewCrawlService(catalog(), nil, pipeline.DefaultConfig(), nil, CrawlOptions{})

	summary, err := svc.Run(ctx, page1URL)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Pages)
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExtractor) ExtractPage(ctx context.Context, pageURL string) (scraper.Page, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return scraper.Page{}, ctx.Err()
	}
	return scraper.Page{URL: pageURL}, nil
}

func TestCrawlService_RejectsConcurrentRuns(t *testing.T) {
	ext := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewCrawlService(ext, nil, pipeline.DefaultConfig(), nil, CrawlOptions{})

	runID, err := svc.Start(context.Background(), page1URL)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	<-ext.started

	assert.True(t, svc.Running())
	_, err = svc.Run(context.Background(), page1URL)
	assert.ErrorIs(t, err, ErrCrawlRunning)
	_, err = svc.Start(context.Background(), page1URL)
	assert.ErrorIs(t, err, ErrCrawlRunning)

	close(ext.release)
	assert.Eventually(t, func() bool { return !svc.Running() }, time.Second, 10*time.Millisecond)

	last, ok := svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, runID, last.RunID)
}

type fakePruner struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakePruner) DeleteOldProducts(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return 3, nil
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSchedulerService_RunsCrawlAndRetentionOnStart(t *testing.T) {
	ext := catalog()
	sink := &memorySink{}
	crawler := NewCrawlService(ext, nil, pipeline.DefaultConfig(), sink, CrawlOptions{})
	pruner := &fakePruner{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewSchedulerService(crawler, pruner, ScheduleOptions{
		StartURL:      page1URL,
		CrawlInterval: time.Hour,
		Retention:     30 * 24 * time.Hour,
	})
	sched.Start(ctx)

	assert.Eventually(t, func() bool {
		_, ok := crawler.LastRun()
		return ok && pruner.count() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 30*24*time.Hour, pruner.calls[0])
}
