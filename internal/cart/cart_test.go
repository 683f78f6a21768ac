package cart

import (
	"testing"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id int64, price int64) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "P",
		Price:     decimal.NewFromInt(price),
		Stock:     10,
		ImageURLs: []string{"img"},
	}
}

func TestCart_AddSameVariantMerges(t *testing.T) {
	c := New(nil)
	p := product(1, 55)

	c.Add(p, "M")
	line := c.Add(p, "M")

	require.Equal(t, 1, c.Len())
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "1-M", line.Key)
}

func TestCart_AddDefaultsSize(t *testing.T) {
	c := New(nil)
	c.Add(product(1, 55), "")
	c.Add(product(1, 55), "M")

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "M", c.Lines()[0].Size)
	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

func TestCart_AddDifferentVariantsStayDistinct(t *testing.T) {
	c := New(nil)
	p := product(1, 55)

	c.Add(p, "M")
	c.Add(p, "L")

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "1-M", lines[0].Key)
	assert.Equal(t, "1-L", lines[1].Key)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)
}

func TestCart_UpdateQuantityClampsAtOne(t *testing.T) {
	c := New(nil)
	c.Add(product(1, 55), "M")
	c.UpdateQuantity("1-M", 3)

	line, ok := c.UpdateQuantity("1-M", -100)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, 1, c.Len())

	_, ok = c.UpdateQuantity("missing", 1)
	assert.False(t, ok)
}

func TestCart_RemoveIsIdempotent(t *testing.T) {
	c := New(nil)
	c.Add(product(1, 55), "M")

	_, ok := c.Remove("1-M")
	assert.True(t, ok)
	_, ok = c.Remove("1-M")
	assert.False(t, ok)
	assert.True(t, c.Empty())
}

func TestCart_TotalFollowsEveryChange(t *testing.T) {
	c := New(nil)
	c.Add(product(1, 55), "M")
	c.Add(product(1, 55), "M")
	c.Add(product(2, 220), "L")
	assert.True(t, decimal.NewFromInt(330).Equal(c.Total()))

	c.UpdateQuantity("2-L", 2)
	assert.True(t, decimal.NewFromInt(770).Equal(c.Total()))

	c.Remove("1-M")
	assert.True(t, decimal.NewFromInt(660).Equal(c.Total()))
	assert.Equal(t, 3, c.Count())

	c.Clear()
	assert.True(t, c.Total().IsZero())
}

func TestCart_TotalWithFractionalPrices(t *testing.T) {
	c := New(nil)
	p := product(1, 0)
	p.Price = decimal.RequireFromString("19.99")
	c.Add(p, "S")
	c.UpdateQuantity("1-S", 2)
	assert.Equal(t, "59.97", c.Total().String())
}

func TestCart_LinesIsACopy(t *testing.T) {
	c := New(nil)
	c.Add(product(1, 55), "M")

	lines := c.Lines()
	lines[0].Quantity = 99
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestCart_NewNormalizesStoredLines(t *testing.T) {
	c := New([]domain.CartLine{
		{ProductID: 1, Quantity: 0},
		{Key: "1-M", ProductID: 1, Size: "M", Quantity: 2},
		{Key: "2-L", ProductID: 2, Size: "L", Quantity: 1},
	})
	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, map[int64]int{1: 3, 2: 1}, c.Quantities())
}
