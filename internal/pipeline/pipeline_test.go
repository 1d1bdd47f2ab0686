package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/product"
)

func newRecord(name, id, current, original string) *product.Record {
	return &product.Record{
		Name:              name,
		ProductID:         id,
		CurrentPriceText:  current,
		OriginalPriceText: original,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDefault_StageOrder(t *testing.T) {
	p := Default(DefaultConfig(), NewMemorySeenSet())
	assert.Equal(t, []string{
		StagePriceConversion,
		StageCurrencyConversion,
		StageDropIfNoPrice,
		StageDeduplication,
		StageSavingsCalculation,
		StageValidation,
	}, p.Stages())
}

func TestRun_ConvertsAndDerivesSavings(t *testing.T) {
	p := Default(DefaultConfig(), NewMemorySeenSet())

	res := p.Run(context.Background(), newRecord("Tecno Spark 20", "TE1", "15000", "20000"))
	require.False(t, res.Dropped())

	rec := res.Record
	assert.True(t, rec.CurrentPrice.Decimal.Equal(dec("2250")))
	assert.True(t, rec.OriginalPrice.Decimal.Equal(dec("3000")))
	assert.True(t, rec.SavingsAmount.Decimal.Equal(dec("750")))
	assert.Equal(t, "25.0%", rec.SavingsPercent)
	assert.Equal(t, "ZAR", rec.Currency)

	fields := rec.Fields()
	assert.Equal(t, 2250.0, fields[product.FieldCurrentPrice])
	assert.Equal(t, 3000.0, fields[product.FieldOriginalPrice])
	assert.Equal(t, 750.0, fields[product.FieldSavingsAmount])
	assert.Equal(t, "25.0%", fields[product.FieldSavingsPercent])
}

func TestRun_FromRawShillingPrice(t *testing.T) {
	n := normalize.New(normalize.Options{})
	raw := product.RawRecord{}
	raw.Set(product.FieldName, "Phone")
	raw.Set(product.FieldProductID, "P1")
	raw.Set(product.FieldCurrentPrice, "KSh 12,500")

	rec := n.Build(raw)
	require.Equal(t, "12500", rec.CurrentPriceText)

	res := Default(DefaultConfig(), nil).Run(context.Background(), &rec)
	require.False(t, res.Dropped())
	assert.Equal(t, 1875.0, res.Record.Fields()[product.FieldCurrentPrice])
	assert.False(t, res.Record.SavingsAmount.Valid)
	assert.Empty(t, res.Record.SavingsPercent)
}

func TestRun_MissingPriceAlwaysDropped(t *testing.T) {
	records := []*product.Record{
		newRecord("A", "1", "", ""),
		newRecord("B", "2", "", "20000"),
		newRecord("", "", "", ""),
		newRecord("C", "3", "not-a-number", ""),
	}
	p := Default(DefaultConfig(), NewMemorySeenSet())

	for _, rec := range records {
		res := p.Run(context.Background(), rec)
		require.True(t, res.Dropped())
		assert.Equal(t, ReasonMissingPrice, res.Drop.Reason)
		assert.Equal(t, StageDropIfNoPrice, res.Drop.Stage)
		assert.True(t, errors.Is(res.Drop, ErrDropped))
	}
}

func TestRun_Duplicates(t *testing.T) {
	p := Default(DefaultConfig(), NewMemorySeenSet())
	ctx := context.Background()

	first := p.Run(ctx, newRecord("Phone X", "1", "100", ""))
	assert.False(t, first.Dropped())

	second := p.Run(ctx, newRecord("Phone X", "2", "200", ""))
	require.True(t, second.Dropped())
	assert.Equal(t, ReasonDuplicate, second.Drop.Reason)

	// Case-sensitive exact match.
	third := p.Run(ctx, newRecord("phone x", "3", "100", ""))
	assert.False(t, third.Dropped())

	// Nameless records pass dedup and are vetoed only by validation.
	for i := 0; i < 2; i++ {
		res := p.Run(ctx, newRecord("", "4", "100", ""))
		require.True(t, res.Dropped())
		assert.Equal(t, StageValidation, res.Drop.Stage)
		assert.Equal(t, []string{product.FieldName}, res.Drop.Fields)
	}
}

func TestRun_DroppedByPriceDoesNotConsumeName(t *testing.T) {
	p := Default(DefaultConfig(), NewMemorySeenSet())
	ctx := context.Background()

	res := p.Run(ctx, newRecord("Phone Y", "1", "", ""))
	require.True(t, res.Dropped())

	res = p.Run(ctx, newRecord("Phone Y", "1", "100", ""))
	assert.False(t, res.Dropped())
}

func TestRun_ValidationListsMissingFields(t *testing.T) {
	p := Default(DefaultConfig(), NewMemorySeenSet())

	res := p.Run(context.Background(), newRecord("Phone Z", "", "100", ""))
	require.True(t, res.Dropped())
	assert.Equal(t, []string{product.FieldProductID}, res.Drop.Fields)
	assert.Equal(t, "missing required fields: [product_id]", res.Drop.Reason)
}

type recordingStage struct {
	name  string
	calls *[]string
	drop  bool
}

func (s recordingStage) Name() string { return s.name }

func (s recordingStage) Process(_ context.Context, rec *product.Record) Result {
	*s.calls = append(*s.calls, s.name)
	if s.drop {
		return DropRecord("", "stop")
	}
	return Continue(rec)
}

func TestRun_ShortCircuitsOnDrop(t *testing.T) {
	var calls []string
	p := New(
		recordingStage{name: "a", calls: &calls},
		recordingStage{name: "b", calls: &calls, drop: true},
		recordingStage{name: "c", calls: &calls},
	)

	res := p.Run(context.Background(), &product.Record{})
	require.True(t, res.Dropped())
	assert.Equal(t, "b", res.Drop.Stage)
	assert.Equal(t, []string{"a", "b"}, calls)
}
