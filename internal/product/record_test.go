package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRawRecord_Get(t *testing.T) {
	raw := RawRecord{}
	raw.Set(FieldName, " Phone ")
	raw[FieldBrand] = nil

	v, ok := raw.Get(FieldName)
	assert.True(t, ok)
	assert.Equal(t, " Phone ", v)

	_, ok = raw.Get(FieldBrand)
	assert.False(t, ok)

	_, ok = raw.Get(FieldImage)
	assert.False(t, ok)
}

func TestRecord_Fields(t *testing.T) {
	rec := &Record{
		Name:          "Tecno Spark 20",
		ProductID:     "TE123",
		CurrentPrice:  decimal.NewNullDecimal(decimal.RequireFromString("2250.00")),
		Currency:      "ZAR",
		SavingsAmount: decimal.NewNullDecimal(decimal.RequireFromString("750")),
	}

	fields := rec.Fields()
	assert.Equal(t, "Tecno Spark 20", fields[FieldName])
	assert.Equal(t, 2250.0, fields[FieldCurrentPrice])
	assert.Equal(t, 750.0, fields[FieldSavingsAmount])
	assert.Nil(t, fields[FieldOriginalPrice])
	assert.Nil(t, fields[FieldBrand])
	assert.Nil(t, fields[FieldSavingsPercent])
	assert.Len(t, fields, 12)
}

func TestRecord_Has(t *testing.T) {
	rec := &Record{Name: "x"}
	assert.True(t, rec.Has(FieldName))
	assert.False(t, rec.Has(FieldProductID))
	assert.False(t, rec.Has(FieldCurrentPrice))
	assert.False(t, rec.Has("unknown"))
}

func TestRecord_Label(t *testing.T) {
	assert.Equal(t, "unknown", (&Record{}).Label())
	assert.Equal(t, "id-1", (&Record{ProductID: "id-1"}).Label())
	assert.Equal(t, "n", (&Record{Name: "n", ProductID: "id-1"}).Label())
}
