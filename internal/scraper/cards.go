package scraper

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/catalog-scraper/internal/product"
	"github.com/baxromumarov/catalog-scraper/internal/urlutil"
)

const (
	cardSelector     = "a.core"
	nextPageSelector = `a[aria-label="Next Page"]`
)

// Tried in order; some listing templates use h3 instead of div.
var nameSelectors = []string{"div.name", "h3.name", ".name"}

// parseCard reads the raw fields of one product card. Cards without a name
// or a product id are banners or ads and are skipped.
func parseCard(card *goquery.Selection, base *url.URL) (product.RawRecord, bool) {
	name := cardName(card)
	if name == "" {
		slog.Debug("skipping card without name")
		return nil, false
	}
	id, ok := card.Attr("data-gtm-id")
	if !ok || strings.TrimSpace(id) == "" {
		slog.Debug("skipping card without product id", "name", name)
		return nil, false
	}

	rec := product.RawRecord{}
	rec.Set(product.FieldName, name)
	rec.Set(product.FieldProductID, id)

	if price := card.Find("div.prc").First(); price.Length() > 0 {
		rec.Set(product.FieldCurrentPrice, ExtractText(price.Get(0)))
		if old, ok := price.Attr("data-oprc"); ok {
			rec.Set(product.FieldOriginalPrice, old)
		}
	}
	if badge := card.Find("div.bdg._dsct").First(); badge.Length() > 0 {
		rec.Set(product.FieldDiscount, ExtractText(badge.Get(0)))
	}
	if href, ok := card.Attr("href"); ok {
		rec.Set(product.FieldURL, href)
		if full := urlutil.Resolve(base, href); full != "" {
			rec.Set(product.FieldFullURL, full)
		}
	}
	if src, ok := card.Find("img.img").First().Attr("data-src"); ok {
		rec.Set(product.FieldImage, src)
	}
	if brand, ok := card.Attr("data-gtm-brand"); ok {
		rec.Set(product.FieldBrand, brand)
	}
	return rec, true
}

func cardName(card *goquery.Selection) string {
	for _, sel := range nameSelectors {
		node := card.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(ExtractText(node.Get(0))); text != "" {
			return text
		}
	}
	return ""
}

// nextPageURL resolves the pagination link, or "" on the last page.
func nextPageURL(href string, base *url.URL) string {
	resolved := urlutil.Resolve(base, href)
	if resolved == "" || !urlutil.IsCrawlable(resolved) {
		return ""
	}
	normalized, _, err := urlutil.Normalize(resolved)
	if err != nil {
		return ""
	}
	return normalized
}

// parseDocument extracts every card and the next page link from a parsed page.
func parseDocument(doc *goquery.Selection, base *url.URL) ([]product.RawRecord, string) {
	var records []product.RawRecord
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		if rec, ok := parseCard(card, base); ok {
			records = append(records, rec)
		}
	})

	next := ""
	if href, ok := doc.Find(nextPageSelector).First().Attr("href"); ok {
		next = nextPageURL(href, base)
	}
	return records, next
}
