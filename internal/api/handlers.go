package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/baxromumarov/catalog-scraper/internal/core"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
	"github.com/baxromumarov/catalog-scraper/internal/store"
	"github.com/baxromumarov/catalog-scraper/internal/urlutil"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"totals": observability.Snapshot(),
	}
	if s.crawler != nil {
		payload["running"] = s.crawler.Running()
		if last, ok := s.crawler.LastRun(); ok {
			payload["last_run"] = last
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	if s.products == nil {
		respondError(w, http.StatusServiceUnavailable, "Product store is not configured")
		return
	}
	limit, offset := parsePagination(r, 20)

	products, total, err := s.products.ListProducts(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch products: "+err.Error())
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  products,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

type StartCrawlRequest struct {
	StartURL string `json:"start_url"`
}

func (s *Server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	if s.crawler == nil {
		respondError(w, http.StatusServiceUnavailable, "Crawler is not configured")
		return
	}

	var req StartCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StartURL == "" {
		req.StartURL = s.opts.DefaultStartURL
	}
	if !urlutil.HasScheme(req.StartURL) {
		respondError(w, http.StatusBadRequest, "start_url must be an absolute http(s) URL")
		return
	}

	runID, err := s.crawler.Start(s.baseCtx, req.StartURL)
	if errors.Is(err, core.ErrCrawlRunning) {
		respondError(w, http.StatusConflict, "A crawl is already running")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to start crawl: "+err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id":    runID,
		"start_url": req.StartURL,
	})
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
