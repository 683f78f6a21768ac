// Package catalog is the product side of the storefront: the catalog source, the derived views
// and the first-load loader.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/shopspring/decimal"
)

// Source provides the catalog before the product collection is populated.
type Source interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id int64) (domain.Product, error)
}

// Delays are the artificial latencies of the mock API.
type Delays struct {
	Products time.Duration
	Product  time.Duration
	Login    time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Products: 600 * time.Millisecond,
		Product:  400 * time.Millisecond,
		Login:    800 * time.Millisecond,
	}
}

// MockAPI serves the seed catalog with fixed delays.
type MockAPI struct {
	delays   Delays
	products []domain.Product
}

var _ Source = (*MockAPI)(nil)

func NewMockAPI(delays Delays) *MockAPI {
	return &MockAPI{delays: delays, products: SeedProducts()}
}

func (m *MockAPI) Products(ctx context.Context) ([]domain.Product, error) {
	if err := sleep(ctx, m.delays.Products); err != nil {
		return nil, err
	}
	out := make([]domain.Product, len(m.products))
	for i, p := range m.products {
		out[i] = p.Clone()
	}
	return out, nil
}

func (m *MockAPI) Product(ctx context.Context, id int64) (domain.Product, error) {
	if err := sleep(ctx, m.delays.Product); err != nil {
		return domain.Product{}, err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return domain.Product{}, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
}

// LoginEcho is the mock login response.
type LoginEcho struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login always succeeds after its delay. It authenticates nothing.
func (m *MockAPI) Login(ctx context.Context, email string) (LoginEcho, error) {
	if err := sleep(ctx, m.delays.Login); err != nil {
		return LoginEcho{}, err
	}
	return LoginEcho{Name: "Admin User", Email: email}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func img(id string) []string {
	return []string{"https://images.unsplash.com/" + id + "?w=800"}
}

// SeedProducts is the prototype catalog.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Noir Heavyweight Tee", Category: "T-Shirts", Price: decimal.NewFromInt(55), Stock: 20,
			Description: "400gsm cotton, boxy fit, acid wash finish.", ImageURLs: img("photo-1576566588028-4147f3842f27")},
		{ID: 2, Name: "Vantablack Tech Jacket", Category: "Outerwear", Price: decimal.NewFromInt(220), Stock: 5,
			Description: "Water-resistant, multiple tactical pockets.", ImageURLs: img("photo-1551488852-7a09d38c44d5")},
		{ID: 3, Name: "Distressed Denim (Gold Stitch)", Category: "Bottoms", Price: decimal.NewFromInt(180), Stock: 12,
			Description: "Hand-distressed Japanese denim with 18k gold thread details.", ImageURLs: img("photo-1542272617-08f082287019")},
		{ID: 4, Name: "Oversized Hoodie 'ECLIPSE'", Category: "Hoodies", Price: decimal.NewFromInt(110), Stock: 50,
			Description: "Drop shoulder, french terry cotton.", ImageURLs: img("photo-1556905055-8f358a7a47b2")},
		{ID: 5, Name: "Silk Bomber 'Kyoto'", Category: "Outerwear", Price: decimal.NewFromInt(350), Stock: 3,
			Description: "Limited edition silk embroidery.", ImageURLs: img("photo-1591047139829-d91aecb6caea")},
		{ID: 6, Name: "Utility Cargo Vest", Category: "Accessories", Price: decimal.NewFromInt(85), Stock: 15,
			Description: "Functional streetwear utility vest.", ImageURLs: img("photo-1517438476312-10d79c077509")},
	}
}
