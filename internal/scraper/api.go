package scraper

import (
	"context"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

// Page is one catalog page worth of extracted cards. An empty NextURL ends
// the crawl.
type Page struct {
	URL     string
	Records []product.RawRecord
	NextURL string
}

// Extractor fetches a catalog page and yields its raw records. It performs no
// cleaning beyond skipping cards that are clearly not products.
type Extractor interface {
	ExtractPage(ctx context.Context, pageURL string) (Page, error)
}
