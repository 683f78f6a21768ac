package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/google/uuid"
)

// newID returns a time-ordered id so remote listings come back in insertion order.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

func (s *Service) Addresses() []domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(nonNil(s.addresses))
}

func (s *Service) AddAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	err := s.mutate(ctx, []persist.Collection{persist.Addresses}, func() ([]persist.Op, error) {
		if err := domain.Validate(a); err != nil {
			return nil, err
		}
		id, err := newID()
		if err != nil {
			return nil, err
		}
		a.ID = id
		s.addresses = append(slices.Clone(s.addresses), a)
		return []persist.Op{persist.Put(s.refLocked(persist.Addresses), a.ID, encode(a), nil)}, nil
	})
	if err != nil {
		return domain.Address{}, err
	}
	s.toasts.Success("Address Added")
	return a, nil
}

// RemoveAddress is idempotent.
func (s *Service) RemoveAddress(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var removed bool
	err := s.mutate(ctx, []persist.Collection{persist.Addresses}, func() ([]persist.Op, error) {
		i := slices.IndexFunc(s.addresses, func(a domain.Address) bool { return a.ID == id })
		if i < 0 {
			return nil, nil
		}
		prev := s.addresses[i]
		s.addresses = slices.Delete(slices.Clone(s.addresses), i, i+1)
		removed = true
		return []persist.Op{persist.Delete(s.refLocked(persist.Addresses), id, encode(prev))}, nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.toasts.Info("Address Removed")
	}
	return nil
}

func (s *Service) Cards() []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(nonNil(s.cards))
}

// AddCard saves a masked card. The full number and the CVC are never stored.
func (s *Service) AddCard(ctx context.Context, in domain.CardInput) (domain.Card, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var card domain.Card
	err := s.mutate(ctx, []persist.Collection{persist.Cards}, func() ([]persist.Op, error) {
		if err := domain.Validate(in); err != nil {
			return nil, err
		}
		id, err := newID()
		if err != nil {
			return nil, err
		}
		card = domain.Card{
			ID:     id,
			Holder: in.Holder,
			Brand:  cardBrand(in.Number),
			Last4:  in.Number[len(in.Number)-4:],
			Expiry: in.Expiry,
		}
		s.cards = append(slices.Clone(s.cards), card)
		return []persist.Op{persist.Put(s.refLocked(persist.Cards), card.ID, encode(card), nil)}, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	s.toasts.Success("Card Saved")
	return card, nil
}

// RemoveCard is idempotent.
func (s *Service) RemoveCard(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var removed bool
	err := s.mutate(ctx, []persist.Collection{persist.Cards}, func() ([]persist.Op, error) {
		i := slices.IndexFunc(s.cards, func(c domain.Card) bool { return c.ID == id })
		if i < 0 {
			return nil, nil
		}
		prev := s.cards[i]
		s.cards = slices.Delete(slices.Clone(s.cards), i, i+1)
		removed = true
		return []persist.Op{persist.Delete(s.refLocked(persist.Cards), id, encode(prev))}, nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.toasts.Info("Card Removed")
	}
	return nil
}

// ReviewsFor returns the product's reviews, newest first.
func (s *Service) ReviewsFor(productID int64) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Review{}
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out
}

// AddReview posts a review under the signed-in name, or "Guest".
func (s *Service) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	err := s.mutate(ctx, []persist.Collection{persist.Reviews}, func() ([]persist.Op, error) {
		if err := domain.Validate(r); err != nil {
			return nil, err
		}
		if _, err := s.productLocked(r.ProductID); err != nil {
			return nil, err
		}
		id, err := newID()
		if err != nil {
			return nil, err
		}
		r.ID = id
		r.Author = "Guest"
		if s.identity != nil {
			r.Author = s.identity.Name
		}
		r.CreatedAt = s.now().UTC()
		s.reviews = append([]domain.Review{r}, s.reviews...)
		return []persist.Op{persist.Put(persist.GlobalRef(persist.Reviews), r.ID, encode(r), nil)}, nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	s.toasts.Success("Review Posted")
	return r, nil
}
