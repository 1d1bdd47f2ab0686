// Package pipeline runs normalized records through the fixed sequence of
// conversion, deduplication, derivation and validation stages.
package pipeline

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

// Config is read-only after startup and shared by every run.
type Config struct {
	ExchangeRate   decimal.Decimal
	Currency       string
	RequiredFields []string
}

func DefaultConfig() Config {
	return Config{
		ExchangeRate:   decimal.RequireFromString("0.15"),
		Currency:       "ZAR",
		RequiredFields: []string{product.FieldName, product.FieldProductID, product.FieldCurrentPrice},
	}
}

type Pipeline struct {
	stages []Stage
}

// New builds a pipeline over an explicit stage order. Most callers want Default.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Default wires the production order. seen is the run's dedup state.
func Default(cfg Config, seen SeenSet) *Pipeline {
	return New(
		NewPriceConversion(),
		NewCurrencyConversion(cfg.ExchangeRate, cfg.Currency),
		NewDropIfNoPrice(),
		NewDeduplication(seen),
		NewSavingsCalculation(),
		NewValidation(cfg.RequiredFields),
	)
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run passes rec through every stage in order and stops at the first drop.
func (p *Pipeline) Run(ctx context.Context, rec *product.Record) Result {
	for _, s := range p.stages {
		res := s.Process(ctx, rec)
		if res.Dropped() {
			if res.Drop.Stage == "" {
				res.Drop.Stage = s.Name()
			}
			return res
		}
		if res.Record != nil {
			rec = res.Record
		}
	}
	return Continue(rec)
}
