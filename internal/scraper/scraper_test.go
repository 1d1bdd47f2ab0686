package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/product"
)

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	page1, err := os.ReadFile(filepath.Join("testdata", "page1.html"))
	require.NoError(t, err)
	page2, err := os.ReadFile(filepath.Join("testdata", "page2.html"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write(page2)
			return
		}
		_, _ = w.Write(page1)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions() httpx.Options {
	return httpx.Options{PerHost: time.Millisecond, Burst: 10, MaxAttempts: 1, Timeout: 5 * time.Second}
}

func value(t *testing.T, rec product.RawRecord, field string) string {
	t.Helper()
	v, ok := rec.Get(field)
	require.True(t, ok, "field %s missing", field)
	return v
}

func assertFirstPage(t *testing.T, page Page, origin string) {
	t.Helper()
	require.Len(t, page.Records, 2)

	first := page.Records[0]
	assert.Equal(t, "Tecno   Spark 20 256GB", value(t, first, product.FieldName))
	assert.Equal(t, "TE123MP", value(t, first, product.FieldProductID))
	assert.Equal(t, "KSh 15,000", strings.TrimSpace(value(t, first, product.FieldCurrentPrice)))
	assert.Equal(t, "KSh 20,000", value(t, first, product.FieldOriginalPrice))
	assert.Equal(t, "25%", value(t, first, product.FieldDiscount))
	assert.Equal(t, "/tecno-spark-20-256gb-123.html", value(t, first, product.FieldURL))
	assert.Equal(t, origin+"/tecno-spark-20-256gb-123.html", value(t, first, product.FieldFullURL))
	assert.Equal(t, "https://ke.jumia.is/unsafe/tecno.jpg", value(t, first, product.FieldImage))
	assert.Equal(t, "tecno", value(t, first, product.FieldBrand))

	second := page.Records[1]
	assert.Equal(t, "Samsung Galaxy A15", value(t, second, product.FieldName))
	assert.Equal(t, "/relative/samsung.jpg", value(t, second, product.FieldImage))
	_, ok := second.Get(product.FieldOriginalPrice)
	assert.False(t, ok)
	_, ok = second.Get(product.FieldDiscount)
	assert.False(t, ok)
}

func TestCatalogScraper_ExtractPage(t *testing.T) {
	srv := catalogServer(t)
	s := NewCatalogScraper(httpx.NewCollyFetcher(testOptions()))
	ctx := context.Background()

	page, err := s.ExtractPage(ctx, srv.URL+"/smartphones/")
	require.NoError(t, err)
	assertFirstPage(t, page, srv.URL)
	assert.Equal(t, srv.URL+"/smartphones/?page=2", page.NextURL)

	last, err := s.ExtractPage(ctx, page.NextURL)
	require.NoError(t, err)
	assert.Len(t, last.Records, 3)
	assert.Empty(t, last.NextURL)
}

func TestDocumentScraper_ExtractPage(t *testing.T) {
	srv := catalogServer(t)
	s := NewDocumentScraper(httpx.NewPoliteClient(testOptions()), "https://www.jumia.co.ke")

	page, err := s.ExtractPage(context.Background(), srv.URL+"/smartphones/")
	require.NoError(t, err)
	assertFirstPage(t, page, srv.URL)
	assert.Equal(t, srv.URL+"/smartphones/?page=2", page.NextURL)
}

func TestDocumentScraper_File(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("testdata", "page1.html"))
	require.NoError(t, err)

	s := NewDocumentScraper(nil, "https://www.jumia.co.ke")
	page, err := s.ExtractPage(context.Background(), "file://"+abs)
	require.NoError(t, err)
	assertFirstPage(t, page, "https://www.jumia.co.ke")
	assert.Equal(t, "https://www.jumia.co.ke/smartphones/?page=2", page.NextURL)
}

func TestDocumentScraper_MissingFile(t *testing.T) {
	s := NewDocumentScraper(nil, "https://www.jumia.co.ke")
	_, err := s.ExtractPage(context.Background(), "file:///does/not/exist.html")
	assert.Error(t, err)
}

func TestParseDocument_NameFallbacks(t *testing.T) {
	html := `<html><body>
<a class="core" data-gtm-id="1" href="/a.html"><span class="name">Span Name</span></a>
<a class="core" data-gtm-id="2" href="/b.html"><div class="name"> </div><h3 class="name">H3 Name</h3></a>
</body></html>`

	page, err := ParseDocument(strings.NewReader(html), "https://www.jumia.co.ke/smartphones/")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Span Name", value(t, page.Records[0], product.FieldName))
	assert.Equal(t, "H3 Name", value(t, page.Records[1], product.FieldName))
	assert.Empty(t, page.NextURL)
}

func TestExtractText_SkipsScripts(t *testing.T) {
	page, err := ParseDocument(strings.NewReader(
		`<a class="core" data-gtm-id="1"><div class="name">Phone<script>var x=1;</script> X</div></a>`,
	), "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Phone X", value(t, page.Records[0], product.FieldName))
}
