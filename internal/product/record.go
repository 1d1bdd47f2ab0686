package product

import (
	"github.com/shopspring/decimal"
)

// Field names shared by the extractor, the normalizer and the sinks.
const (
	FieldName           = "name"
	FieldProductID      = "product_id"
	FieldBrand          = "brand"
	FieldCurrentPrice   = "current_price"
	FieldOriginalPrice  = "original_price"
	FieldDiscount       = "discount"
	FieldURL            = "url"
	FieldFullURL        = "full_url"
	FieldImage          = "image"
	FieldCurrency       = "currency"
	FieldSavingsAmount  = "savings_amount"
	FieldSavingsPercent = "savings_percent"
)

// RawRecord is what an extractor yields for one catalog card. A nil value
// or a missing key means the field was not found on the page.
type RawRecord map[string]*string

// Get returns the raw value and whether it was present.
func (r RawRecord) Get(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Set stores a present value.
func (r RawRecord) Set(field, value string) {
	v := value
	r[field] = &v
}

// Record is the normalized listing threaded through the pipeline.
// Empty strings and invalid NullDecimals are absent values.
type Record struct {
	Name      string
	ProductID string
	Brand     string

	// Normalized numeric text, converted by the pipeline.
	CurrentPriceText  string
	OriginalPriceText string

	CurrentPrice  decimal.NullDecimal
	OriginalPrice decimal.NullDecimal

	Discount string
	URL      string
	FullURL  string
	Image    string

	Currency       string
	SavingsAmount  decimal.NullDecimal
	SavingsPercent string
}

// Has reports whether the named field holds a value.
func (r *Record) Has(field string) bool {
	switch field {
	case FieldName:
		return r.Name != ""
	case FieldProductID:
		return r.ProductID != ""
	case FieldBrand:
		return r.Brand != ""
	case FieldCurrentPrice:
		return r.CurrentPrice.Valid
	case FieldOriginalPrice:
		return r.OriginalPrice.Valid
	case FieldDiscount:
		return r.Discount != ""
	case FieldURL:
		return r.URL != ""
	case FieldFullURL:
		return r.FullURL != ""
	case FieldImage:
		return r.Image != ""
	case FieldCurrency:
		return r.Currency != ""
	case FieldSavingsAmount:
		return r.SavingsAmount.Valid
	case FieldSavingsPercent:
		return r.SavingsPercent != ""
	}
	return false
}

// Fields flattens the record for sinks: numbers as float64, text as string,
// absent values as nil.
func (r *Record) Fields() map[string]any {
	return map[string]any{
		FieldName:           text(r.Name),
		FieldProductID:      text(r.ProductID),
		FieldBrand:          text(r.Brand),
		FieldCurrentPrice:   number(r.CurrentPrice),
		FieldOriginalPrice:  number(r.OriginalPrice),
		FieldDiscount:       text(r.Discount),
		FieldURL:            text(r.URL),
		FieldFullURL:        text(r.FullURL),
		FieldImage:          text(r.Image),
		FieldCurrency:       text(r.Currency),
		FieldSavingsAmount:  number(r.SavingsAmount),
		FieldSavingsPercent: text(r.SavingsPercent),
	}
}

// Label is a printable identity for log lines.
func (r *Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.ProductID != "" {
		return r.ProductID
	}
	return "unknown"
}

func text(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func number(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return f
}
