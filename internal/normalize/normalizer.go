// Package normalize turns raw catalog strings into cleaned field values.
//
// Every rule is a chain of small steps applied left to right. A step that
// cannot produce a value ends the chain and the field becomes absent; no rule
// ever returns an error.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/baxromumarov/catalog-scraper/internal/product"
	"github.com/baxromumarov/catalog-scraper/internal/urlutil"
)

const DefaultBaseURL = "https://www.jumia.co.ke"

var (
	currencyMarkers = regexp.MustCompile(`(?i)ksh|[$£€¥₹]`)
	nonNumeric      = regexp.MustCompile(`[^\d.]`)
)

// Options configures the rules that depend on the target site.
type Options struct {
	BaseURL string
	// NumericDiscount reduces labels such as "-25%" to "25".
	NumericDiscount bool
}

type step func(string) (string, bool)

type Normalizer struct {
	opts  Options
	rules map[string][]step
}

func New(opts Options) *Normalizer {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	n := &Normalizer{opts: opts}

	discount := []step{trim, nonEmpty}
	if opts.NumericDiscount {
		discount = append(discount, digitsOnly, nonEmpty)
	}

	n.rules = map[string][]step{
		product.FieldName:          {trim, collapseSpaces, nonEmpty},
		product.FieldCurrentPrice:  {trim, stripCurrency, stripSeparators, numericOnly},
		product.FieldOriginalPrice: {trim, stripCurrency, stripSeparators, numericOnly},
		product.FieldDiscount:      discount,
		product.FieldURL:           {trim, nonEmpty},
		product.FieldFullURL:       {trim, nonEmpty, n.absolute},
		product.FieldImage:         {trim, nonEmpty, schemeOnly},
		product.FieldBrand:         {trim, nonEmpty, titleCase},
		product.FieldProductID:     {trim, nonEmpty},
	}
	return n
}

// Clean applies the rule for field to a present raw value. Unknown fields are
// always absent.
func (n *Normalizer) Clean(field, raw string) (string, bool) {
	steps, ok := n.rules[field]
	if !ok {
		return "", false
	}
	v := raw
	for _, s := range steps {
		if v, ok = s(v); !ok {
			return "", false
		}
	}
	return v, true
}

// Build constructs the record for one extracted card. Prices stay as
// normalized text; the pipeline converts them.
func (n *Normalizer) Build(raw product.RawRecord) product.Record {
	var rec product.Record

	rec.Name = n.field(raw, product.FieldName)
	rec.ProductID = n.field(raw, product.FieldProductID)
	rec.Brand = n.field(raw, product.FieldBrand)
	rec.CurrentPriceText = n.field(raw, product.FieldCurrentPrice)
	rec.OriginalPriceText = n.field(raw, product.FieldOriginalPrice)
	rec.Discount = n.field(raw, product.FieldDiscount)
	rec.URL = n.field(raw, product.FieldURL)
	rec.Image = n.field(raw, product.FieldImage)

	rec.FullURL = n.field(raw, product.FieldFullURL)
	if rec.FullURL == "" && rec.URL != "" {
		rec.FullURL, _ = n.Clean(product.FieldFullURL, rec.URL)
	}
	return rec
}

func (n *Normalizer) field(raw product.RawRecord, field string) string {
	v, ok := raw.Get(field)
	if !ok {
		return ""
	}
	out, _ := n.Clean(field, v)
	return out
}

func (n *Normalizer) absolute(s string) (string, bool) {
	return urlutil.WithBase(n.opts.BaseURL, s), true
}

func trim(s string) (string, bool) {
	return strings.TrimSpace(s), true
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

func collapseSpaces(s string) (string, bool) {
	return strings.Join(strings.Fields(s), " "), true
}

func stripCurrency(s string) (string, bool) {
	return strings.TrimSpace(currencyMarkers.ReplaceAllString(s, "")), true
}

func stripSeparators(s string) (string, bool) {
	return strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s), true
}

// numericOnly accepts digits with at most one decimal point.
func numericOnly(s string) (string, bool) {
	if s == "" || strings.Count(s, ".") > 1 {
		return "", false
	}
	digits := strings.Replace(s, ".", "", 1)
	if digits == "" {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

func digitsOnly(s string) (string, bool) {
	return nonNumeric.ReplaceAllString(s, ""), true
}

func schemeOnly(s string) (string, bool) {
	return s, urlutil.HasScheme(s)
}

func titleCase(s string) (string, bool) {
	return cases.Title(language.Und).String(s), true
}
