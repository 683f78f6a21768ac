package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/shopspring/decimal"
)

func (s *Service) Cart() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nonNil(s.cart.Lines())
}

func (s *Service) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Total()
}

// CartCount sums quantities across lines.
func (s *Service) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Count()
}

// AddToCart adds one unit of the product in size and opens the cart.
func (s *Service) AddToCart(ctx context.Context, productID int64, size string) (domain.CartLine, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var line domain.CartLine
	err := s.mutate(ctx, []persist.Collection{persist.Cart}, func() ([]persist.Op, error) {
		p, err := s.productLocked(productID)
		if err != nil {
			return nil, err
		}
		var prev []byte
		if existing, ok := s.cart.Find(domain.LineKey(productID, size)); ok {
			prev = encode(existing)
		}
		line = s.cart.Add(p, size)
		s.ui.CartOpen = true
		return []persist.Op{persist.Put(s.refLocked(persist.Cart), line.Key, encode(line), prev)}, nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	s.toasts.Success("Added to Cart")
	return line, nil
}

// RemoveFromCart drops the line. Removing an absent line is a no-op.
func (s *Service) RemoveFromCart(ctx context.Context, key string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	return s.mutate(ctx, []persist.Collection{persist.Cart}, func() ([]persist.Op, error) {
		removed, ok := s.cart.Remove(key)
		if !ok {
			return nil, nil
		}
		return []persist.Op{persist.Delete(s.refLocked(persist.Cart), removed.Key, encode(removed))}, nil
	})
}

// UpdateQuantity changes a line's quantity by delta, never below one.
func (s *Service) UpdateQuantity(ctx context.Context, key string, delta int) (domain.CartLine, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var line domain.CartLine
	err := s.mutate(ctx, []persist.Collection{persist.Cart}, func() ([]persist.Op, error) {
		prev, ok := s.cart.Find(key)
		if !ok {
			return nil, fmt.Errorf("cart line %q: %w", key, domain.ErrNotFound)
		}
		line, _ = s.cart.UpdateQuantity(key, delta)
		return []persist.Op{persist.Put(s.refLocked(persist.Cart), key, encode(line), encode(prev))}, nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	return line, nil
}

func (s *Service) Wishlist() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.wishlist)
}

func (s *Service) IsInWishlist(productID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.wishlist, func(p domain.Product) bool { return p.ID == productID })
}

// ToggleWishlist adds the product or removes it when present. It reports whether the product is
// saved afterwards.
func (s *Service) ToggleWishlist(ctx context.Context, productID int64) (bool, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var saved bool
	err := s.mutate(ctx, []persist.Collection{persist.Wishlist}, func() ([]persist.Op, error) {
		ref := s.refLocked(persist.Wishlist)
		if i := slices.IndexFunc(s.wishlist, func(p domain.Product) bool { return p.ID == productID }); i >= 0 {
			prev := s.wishlist[i]
			s.wishlist = slices.Delete(slices.Clone(s.wishlist), i, i+1)
			saved = false
			return []persist.Op{persist.Delete(ref, prev.Key(), encode(prev))}, nil
		}
		p, err := s.productLocked(productID)
		if err != nil {
			return nil, err
		}
		s.wishlist = append(slices.Clone(s.wishlist), p)
		saved = true
		return []persist.Op{persist.Put(ref, p.Key(), encode(p), nil)}, nil
	})
	if err != nil {
		return false, err
	}
	if saved {
		s.toasts.Success("Saved to Wishlist")
	} else {
		s.toasts.Info("Removed from Wishlist")
	}
	return saved, nil
}
