// Package checkout holds the pure parts of placing an order: promo pricing, the stock policy
// and the order snapshot.
package checkout

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/shopspring/decimal"
)

// PromoCode is the only recognized code; it takes 20% off.
const PromoCode = "CORC20"

var promoRate = decimal.NewFromFloat(0.2)

// Quote is the priced cart.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ApplyPromo prices subtotal with code. An empty code is no promo. An unknown code yields a zero
// discount, an unchanged total and ErrInvalidPromoCode.
func ApplyPromo(code string, subtotal decimal.Decimal) (Quote, error) {
	q := Quote{Subtotal: subtotal, Discount: decimal.Zero, Total: subtotal}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return q, nil
	}
	if code != PromoCode {
		q.Message = domain.Describe(domain.ErrInvalidPromoCode)
		return q, domain.ErrInvalidPromoCode
	}
	q.Code = code
	q.Discount = subtotal.Mul(promoRate).Round(0)
	q.Total = subtotal.Sub(q.Discount)
	q.Message = fmt.Sprintf("Code Applied: -$%s", q.Discount)
	return q, nil
}

// CheckStock rejects an order that needs more units than a product has. Oversell is never
// clamped.
func CheckStock(products map[int64]domain.Product, want map[int64]int) error {
	ids := make([]int64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}
		if p.Stock < want[id] {
			return fmt.Errorf("%w: %s has %d, %d requested", domain.ErrInsufficientStock, p.Name, p.Stock, want[id])
		}
	}
	return nil
}

// NewOrderID returns a human-readable id, ORD- followed by four digits.
func NewOrderID() string {
	return fmt.Sprintf("ORD-%d", 1000+rand.IntN(9000))
}

// NewOrder snapshots lines by value into a processing order.
func NewOrder(id, owner string, lines []domain.CartLine, shipping domain.Address, q Quote, now time.Time) domain.Order {
	return domain.Order{
		ID:        id,
		OwnerID:   owner,
		CreatedAt: now.UTC(),
		Status:    domain.OrderStatusProcessing,
		Items:     slices.Clone(lines),
		Subtotal:  q.Subtotal,
		Discount:  q.Discount,
		Total:     q.Total,
		PromoCode: q.Code,
		Shipping:  shipping,
	}
}
