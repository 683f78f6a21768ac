package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultSize is the variant used when none is selected.
const DefaultSize = "M"

// CartLine is one purchasable unit in the in-progress order.
// Its identity is the product id plus the size.
type CartLine struct {
	Key       string          `json:"uniqueId"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
}

func LineKey(productID int64, size string) string {
	if size == "" {
		size = DefaultSize
	}
	return fmt.Sprintf("%d-%s", productID, size)
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
