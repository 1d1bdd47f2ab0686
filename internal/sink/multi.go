package sink

import (
	"context"
	"errors"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

// Saver is the single operation every sink implements.
type Saver interface {
	Save(ctx context.Context, rec *product.Record) error
}

// Multi fans a record out to every sink. All sinks are tried; their errors are joined.
type Multi []Saver

func (m Multi) Save(ctx context.Context, rec *product.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
