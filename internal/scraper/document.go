package scraper

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
)

const componentDocument = "scraper_document"

// DocumentScraper parses listing pages with goquery. Pages come from the
// polite HTTP client, or from disk for file:// URLs (saved pages, fixtures).
type DocumentScraper struct {
	client *httpx.PoliteClient
	// Relative links in saved pages resolve against this site.
	baseURL string
}

func NewDocumentScraper(client *httpx.PoliteClient, baseURL string) *DocumentScraper {
	if client == nil {
		client = httpx.NewPoliteClient(httpx.Options{})
	}
	return &DocumentScraper{client: client, baseURL: baseURL}
}

func (s *DocumentScraper) ExtractPage(ctx context.Context, pageURL string) (Page, error) {
	if path, ok := filePath(pageURL); ok {
		return s.extractFile(path)
	}

	resp, err := s.client.Get(ctx, pageURL)
	if err != nil {
		observability.IncError(observability.ClassifyFetchError(err), componentDocument)
		return Page{URL: pageURL}, fmt.Errorf("catalog page %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	page, err := ParseDocument(resp.Body, resp.Request.URL.String())
	if err != nil {
		observability.IncError(observability.ErrorParsing, componentDocument)
		return page, err
	}
	observability.IncPagesCrawled(componentDocument)
	return page, nil
}

func (s *DocumentScraper) extractFile(path string) (Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return Page{URL: path}, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	page, err := ParseDocument(f, s.baseURL)
	if err != nil {
		return page, err
	}
	page.URL = path
	observability.IncPagesCrawled(componentDocument)
	return page, nil
}

// ParseDocument reads one listing page. pageURL is used to resolve links.
func ParseDocument(r io.Reader, pageURL string) (Page, error) {
	page := Page{URL: pageURL}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return page, fmt.Errorf("catalog parse failed: %w", err)
	}

	var base *url.URL
	if pageURL != "" {
		if base, err = url.Parse(pageURL); err != nil {
			base = nil
		}
	}
	page.Records, page.NextURL = parseDocument(doc.Selection, base)
	return page, nil
}

func filePath(pageURL string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(pageURL), "file://") {
		return "", false
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(pageURL, "file://"), true
	}
	return u.Path, true
}

var _ Extractor = (*DocumentScraper)(nil)
