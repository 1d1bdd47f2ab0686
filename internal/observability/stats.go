package observability

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type StatsSnapshot struct {
	PagesCrawled      uint64            `json:"pages_crawled"`
	RecordsExtracted  uint64            `json:"records_extracted"`
	RecordsEmitted    uint64            `json:"records_emitted"`
	RecordsDropped    uint64            `json:"records_dropped"`
	RunsCompleted     uint64            `json:"runs_completed"`
	ErrorsTotal       uint64            `json:"errors_total"`
	CrawlSecondsAvg   float64           `json:"crawl_seconds_avg"`
	DropsByReason     map[string]uint64 `json:"drops_by_reason,omitempty"`
	ErrorsByType      map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByComponent map[string]uint64 `json:"errors_by_component,omitempty"`
}

var (
	pagesCrawled     uint64
	recordsExtracted uint64
	recordsEmitted   uint64
	recordsDropped   uint64
	errorsTotal      uint64

	crawlCount uint64
	crawlNanos uint64

	statsMu           sync.Mutex
	dropsByReason     = map[string]uint64{}
	errorsByType      = map[string]uint64{}
	errorsByComponent = map[string]uint64{}
)

var (
	registerOnce sync.Once

	pagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_pages_crawled_total",
		Help: "Catalog pages fetched and parsed.",
	}, []string{"component"})
	extractedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_records_extracted_total",
		Help: "Raw records yielded by the extractor.",
	})
	emittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_records_emitted_total",
		Help: "Records that passed every pipeline stage.",
	})
	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_records_dropped_total",
		Help: "Records dropped by a pipeline stage.",
	}, []string{"stage"})
	errorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Errors by type and component.",
	}, []string{"type", "component"})
	crawlDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_crawl_duration_seconds",
		Help:    "Duration of complete crawl runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// RegisterMetrics registers the collectors once. Later calls are no-ops.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		reg.MustRegister(pagesCounter, extractedCounter, emittedCounter, droppedCounter, errorsCounter, crawlDuration)
	})
}

func IncPagesCrawled(component string) {
	atomic.AddUint64(&pagesCrawled, 1)
	pagesCounter.WithLabelValues(label(component)).Inc()
}

func AddRecordsExtracted(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&recordsExtracted, uint64(n))
	extractedCounter.Add(float64(n))
}

func IncRecordsEmitted() {
	atomic.AddUint64(&recordsEmitted, 1)
	emittedCounter.Inc()
}

func IncRecordDropped(stage, reason string) {
	atomic.AddUint64(&recordsDropped, 1)
	statsMu.Lock()
	dropsByReason[label(reason)]++
	statsMu.Unlock()
	droppedCounter.WithLabelValues(label(stage)).Inc()
}

func ObserveCrawlDuration(_ string, seconds float64) {
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&crawlCount, 1)
	atomic.AddUint64(&crawlNanos, uint64(seconds*1e9))
	crawlDuration.Observe(seconds)
}

func IncError(errType, component string) {
	errType = label(errType)
	component = label(component)
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByComponent[component]++
	statsMu.Unlock()
	errorsCounter.WithLabelValues(errType, component).Inc()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	dropsCopy := copyMap(dropsByReason)
	errorsTypeCopy := copyMap(errorsByType)
	errorsComponentCopy := copyMap(errorsByComponent)
	statsMu.Unlock()

	count := atomic.LoadUint64(&crawlCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&crawlNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		PagesCrawled:      atomic.LoadUint64(&pagesCrawled),
		RecordsExtracted:  atomic.LoadUint64(&recordsExtracted),
		RecordsEmitted:    atomic.LoadUint64(&recordsEmitted),
		RecordsDropped:    atomic.LoadUint64(&recordsDropped),
		RunsCompleted:     count,
		ErrorsTotal:       atomic.LoadUint64(&errorsTotal),
		CrawlSecondsAvg:   avg,
		DropsByReason:     dropsCopy,
		ErrorsByType:      errorsTypeCopy,
		ErrorsByComponent: errorsComponentCopy,
	}
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
