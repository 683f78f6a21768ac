package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
)

// replaceLocked swaps the in-memory collection c for the JSON array raw.
// Orders and reviews are kept newest first, history by view time.
func (s *Service) replaceLocked(c persist.Collection, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("[]")
	}
	switch c {
	case persist.Products:
		var ps []domain.Product
		if err := json.Unmarshal(raw, &ps); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		s.products = ps
	case persist.Cart:
		var lines []domain.CartLine
		if err := json.Unmarshal(raw, &lines); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		s.cart.Replace(lines)
	case persist.Wishlist:
		var ps []domain.Product
		if err := json.Unmarshal(raw, &ps); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		s.wishlist = ps
	case persist.Orders:
		var os []domain.Order
		if err := json.Unmarshal(raw, &os); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		slices.SortStableFunc(os, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
		s.orders = os
	case persist.Addresses:
		var as []domain.Address
		if err := json.Unmarshal(raw, &as); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		s.addresses = as
	case persist.Cards:
		var cs []domain.Card
		if err := json.Unmarshal(raw, &cs); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		s.cards = cs
	case persist.Reviews:
		var rs []domain.Review
		if err := json.Unmarshal(raw, &rs); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		slices.SortStableFunc(rs, func(a, b domain.Review) int { return b.CreatedAt.Compare(a.CreatedAt) })
		s.reviews = rs
	case persist.RecentlyViewed:
		var vs []domain.ViewedProduct
		if err := json.Unmarshal(raw, &vs); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		slices.SortStableFunc(vs, func(a, b domain.ViewedProduct) int { return b.ViewedAt.Compare(a.ViewedAt) })
		if len(vs) > RecentlyViewedLimit {
			vs = vs[:RecentlyViewedLimit]
		}
		s.recent = vs
	default:
		return fmt.Errorf("unknown collection %q", c)
	}
	return nil
}

func (s *Service) encodeLocked(colls []persist.Collection) map[persist.Collection]json.RawMessage {
	out := make(map[persist.Collection]json.RawMessage, len(colls))
	for _, c := range colls {
		out[c] = s.encodeOneLocked(c)
	}
	return out
}

func (s *Service) encodeOneLocked(c persist.Collection) json.RawMessage {
	switch c {
	case persist.Products:
		return encode(nonNil(s.products))
	case persist.Cart:
		return encode(nonNil(s.cart.Lines()))
	case persist.Wishlist:
		return encode(nonNil(s.wishlist))
	case persist.Orders:
		return encode(nonNil(s.orders))
	case persist.Addresses:
		return encode(nonNil(s.addresses))
	case persist.Cards:
		return encode(nonNil(s.cards))
	case persist.Reviews:
		return encode(nonNil(s.reviews))
	case persist.RecentlyViewed:
		return encode(nonNil(s.recent))
	}
	return json.RawMessage("[]")
}

// clearOwnedLocked drops everything scoped to an identity.
func (s *Service) clearOwnedLocked() {
	s.cart.Clear()
	s.wishlist = nil
	s.orders = nil
	s.addresses = nil
	s.cards = nil
	s.recent = nil
	s.ui = UIState{}
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func (s *Service) productIndexLocked(id int64) int {
	return slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
}

func (s *Service) productLocked(id int64) (domain.Product, error) {
	i := s.productIndexLocked(id)
	if i < 0 {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return s.products[i].Clone(), nil
}

func (s *Service) requireAdminLocked() error {
	if s.identity == nil || !s.identity.IsAdmin {
		return fmt.Errorf("%w: admin only", domain.ErrUnauthorized)
	}
	return nil
}

func (s *Service) requireIdentityLocked() error {
	if s.identity == nil {
		return fmt.Errorf("%w: sign in first", domain.ErrUnauthorized)
	}
	return nil
}

// cardBrand guesses the network from the leading digit.
func cardBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "Visa"
	case strings.HasPrefix(number, "5"), strings.HasPrefix(number, "2"):
		return "Mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "Amex"
	}
	return "Card"
}
