package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	ImageURLs   []string        `json:"imageUrls" validate:"min=1,dive,required"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (p Product) Key() string {
	return fmt.Sprintf("%d", p.ID)
}

// Image returns the primary image reference.
func (p Product) Image() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

// Clone returns a copy that shares no slices with p.
func (p Product) Clone() Product {
	c := p
	c.ImageURLs = append([]string(nil), p.ImageURLs...)
	return c
}

func (p Product) Validate() error {
	if err := Validate(p); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

// ViewedProduct is one entry of the recently viewed history.
type ViewedProduct struct {
	Product
	ViewedAt time.Time `json:"viewedAt"`
}
