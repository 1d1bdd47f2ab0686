package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

const (
	StagePriceConversion    = "price_conversion"
	StageCurrencyConversion = "currency_conversion"
	StageDropIfNoPrice      = "drop_if_no_price"
	StageDeduplication      = "deduplication"
	StageSavingsCalculation = "savings_calculation"
	StageValidation         = "validation"
)

var hundred = decimal.NewFromInt(100)

// PriceConversion parses the normalized price text into decimals.
type PriceConversion struct{}

func NewPriceConversion() *PriceConversion {
	return &PriceConversion{}
}

func (s *PriceConversion) Name() string { return StagePriceConversion }

func (s *PriceConversion) Process(_ context.Context, rec *product.Record) Result {
	rec.CurrentPrice = parsePrice(rec, product.FieldCurrentPrice, rec.CurrentPriceText, rec.CurrentPrice)
	rec.OriginalPrice = parsePrice(rec, product.FieldOriginalPrice, rec.OriginalPriceText, rec.OriginalPrice)
	return Continue(rec)
}

func parsePrice(rec *product.Record, field, text string, current decimal.NullDecimal) decimal.NullDecimal {
	if current.Valid {
		return current
	}
	if text == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		slog.Warn("could not convert price", "field", field, "value", text, "product", rec.Label(), "error", err)
		return decimal.NullDecimal{}
	}
	slog.Debug("converted price", "field", field, "value", d.String())
	return decimal.NewNullDecimal(d)
}

// CurrencyConversion applies a fixed exchange rate and stamps the currency.
type CurrencyConversion struct {
	rate     decimal.Decimal
	currency string
}

func NewCurrencyConversion(rate decimal.Decimal, currency string) *CurrencyConversion {
	return &CurrencyConversion{rate: rate, currency: currency}
}

func (s *CurrencyConversion) Name() string { return StageCurrencyConversion }

func (s *CurrencyConversion) Process(_ context.Context, rec *product.Record) Result {
	if rec.CurrentPrice.Valid {
		before := rec.CurrentPrice.Decimal
		rec.CurrentPrice = decimal.NewNullDecimal(before.Mul(s.rate).Round(2))
		slog.Debug("converted currency", "from", before.String(), "to", rec.CurrentPrice.Decimal.String(), "currency", s.currency)
	}
	if rec.OriginalPrice.Valid {
		rec.OriginalPrice = decimal.NewNullDecimal(rec.OriginalPrice.Decimal.Mul(s.rate).Round(2))
	}
	rec.Currency = s.currency
	return Continue(rec)
}

// DropIfNoPrice rejects records without a usable current price.
type DropIfNoPrice struct{}

func NewDropIfNoPrice() *DropIfNoPrice {
	return &DropIfNoPrice{}
}

func (s *DropIfNoPrice) Name() string { return StageDropIfNoPrice }

func (s *DropIfNoPrice) Process(_ context.Context, rec *product.Record) Result {
	if !rec.CurrentPrice.Valid {
		return DropRecord(s.Name(), ReasonMissingPrice)
	}
	return Continue(rec)
}

// Deduplication drops records whose name was already seen in this run.
// Records without a name pass unchecked.
type Deduplication struct {
	seen SeenSet
}

func NewDeduplication(seen SeenSet) *Deduplication {
	if seen == nil {
		seen = NewMemorySeenSet()
	}
	return &Deduplication{seen: seen}
}

func (s *Deduplication) Name() string { return StageDeduplication }

func (s *Deduplication) Process(ctx context.Context, rec *product.Record) Result {
	if rec.Name == "" {
		return Continue(rec)
	}
	added, err := s.seen.Add(ctx, rec.Name)
	if err != nil {
		slog.Warn("dedup state unavailable, keeping record", "product", rec.Name, "error", err)
		return Continue(rec)
	}
	if !added {
		return DropRecord(s.Name(), ReasonDuplicate)
	}
	slog.Debug("new unique product", "product", rec.Name)
	return Continue(rec)
}

// SavingsCalculation derives savings when both prices are known.
type SavingsCalculation struct{}

func NewSavingsCalculation() *SavingsCalculation {
	return &SavingsCalculation{}
}

func (s *SavingsCalculation) Name() string { return StageSavingsCalculation }

func (s *SavingsCalculation) Process(_ context.Context, rec *product.Record) Result {
	if !rec.CurrentPrice.Valid || !rec.OriginalPrice.Valid {
		return Continue(rec)
	}
	original := rec.OriginalPrice.Decimal
	savings := original.Sub(rec.CurrentPrice.Decimal).Round(2)
	rec.SavingsAmount = decimal.NewNullDecimal(savings)

	if original.IsPositive() {
		percent := savings.Div(original).Mul(hundred).Round(1)
		rec.SavingsPercent = percent.StringFixed(1) + "%"
	}
	slog.Debug("calculated savings", "amount", savings.String(), "percent", rec.SavingsPercent)
	return Continue(rec)
}

// Validation is the final gate on required fields.
type Validation struct {
	required []string
}

func NewValidation(required []string) *Validation {
	return &Validation{required: append([]string(nil), required...)}
}

func (s *Validation) Name() string { return StageValidation }

func (s *Validation) Process(_ context.Context, rec *product.Record) Result {
	var missing []string
	for _, field := range s.required {
		if !rec.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		reason := fmt.Sprintf("%s: [%s]", ReasonMissingField, strings.Join(missing, ", "))
		return DropRecord(s.Name(), reason, missing...)
	}
	return Continue(rec)
}
