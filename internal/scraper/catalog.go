package scraper

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gocolly/colly/v2"

	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/observability"
)

const componentCatalog = "scraper_catalog"

// CatalogScraper reads listing pages with Colly.
type CatalogScraper struct {
	fetcher *httpx.CollyFetcher
}

func NewCatalogScraper(fetcher *httpx.CollyFetcher) *CatalogScraper {
	if fetcher == nil {
		fetcher = httpx.NewCollyFetcher(httpx.Options{})
	}
	return &CatalogScraper{fetcher: fetcher}
}

func (s *CatalogScraper) ExtractPage(ctx context.Context, pageURL string) (Page, error) {
	page := Page{URL: pageURL}

	err := s.fetcher.Fetch(ctx, pageURL, func(c *colly.Collector) {
		c.OnHTML(cardSelector, func(e *colly.HTMLElement) {
			if rec, ok := parseCard(e.DOM, requestURL(e)); ok {
				page.Records = append(page.Records, rec)
			}
		})
		c.OnHTML(nextPageSelector, func(e *colly.HTMLElement) {
			if page.NextURL != "" {
				return
			}
			page.NextURL = nextPageURL(e.Attr("href"), requestURL(e))
		})
	})
	if err != nil {
		observability.IncError(observability.ClassifyFetchError(err), componentCatalog)
		return page, fmt.Errorf("catalog page %s: %w", pageURL, err)
	}
	observability.IncPagesCrawled(componentCatalog)
	return page, nil
}

func requestURL(e *colly.HTMLElement) *url.URL {
	if e.Request == nil {
		return nil
	}
	return e.Request.URL
}

var _ Extractor = (*CatalogScraper)(nil)
