package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baxromumarov/catalog-scraper/internal/core"
	"github.com/baxromumarov/catalog-scraper/internal/store"
)

// ProductLister is the read side of the product store.
type ProductLister interface {
	ListProducts(ctx context.Context, limit, offset int) ([]store.Product, int, error)
}

// Crawler starts and reports on crawl runs.
type Crawler interface {
	Start(ctx context.Context, startURL string) (string, error)
	Running() bool
	LastRun() (core.RunSummary, bool)
}

type Options struct {
	// DefaultStartURL is crawled when a trigger request names no URL.
	DefaultStartURL string
	AllowedOrigins  []string
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	router   *chi.Mux
	products ProductLister
	crawler  Crawler
	opts     Options
	// Runs triggered over HTTP outlive the request; they use this context.
	baseCtx context.Context
}

func NewServer(ctx context.Context, products ProductLister, crawler Crawler, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		router:   chi.NewRouter(),
		products: products,
		crawler:  crawler,
		opts:     opts,
		baseCtx:  ctx,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	s.router.Get("/products", s.handleListProducts)
	s.router.Post("/crawls", s.handleStartCrawl)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
