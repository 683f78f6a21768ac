package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
)

func cloneProducts(ps []domain.Product) []domain.Product {
	out := make([]domain.Product, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

// Products returns the catalog in stored order.
func (s *Service) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products)
}

// Browse filters by category and sorts. An empty category or "All" keeps everything.
func (s *Service) Browse(category string, order catalog.SortOrder) []domain.Product {
	return catalog.Sort(catalog.FilterByCategory(s.Products(), category), order)
}

func (s *Service) Search(query string) []domain.Product {
	return catalog.Search(s.Products(), query)
}

func (s *Service) Categories() []string {
	return catalog.Categories(s.Products())
}

func (s *Service) ProductByID(id int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productLocked(id)
}

// errCatalogFill marks a fill whose commit failure was already surfaced by mutate.
var errCatalogFill = errors.New("catalog fill failed")

// EnsureCatalog fetches and persists the catalog when the cache is empty. Concurrent calls share
// one fetch and one failure toast.
func (s *Service) EnsureCatalog(ctx context.Context) ([]domain.Product, error) {
	cached := func() ([]domain.Product, bool) {
		ps := s.Products()
		return ps, len(ps) > 0
	}
	fill := func(ps []domain.Product) error {
		s.metrics.CatalogFetched()
		s.ops.Lock()
		defer s.ops.Unlock()
		err := s.mutate(ctx, []persist.Collection{persist.Products}, func() ([]persist.Op, error) {
			if len(s.products) > 0 {
				return nil, nil
			}
			s.products = cloneProducts(ps)
			ref := persist.GlobalRef(persist.Products)
			ops := make([]persist.Op, 0, len(ps))
			for _, p := range ps {
				ops = append(ops, persist.Put(ref, p.Key(), encode(p), nil))
			}
			return ops, nil
		})
		if err != nil {
			return fmt.Errorf("%w: %w", errCatalogFill, err)
		}
		return nil
	}
	ps, err := s.loader.EnsureLoaded(ctx, cached, fill)
	if err != nil {
		return nil, err
	}
	return cloneProducts(ps), nil
}

// catalogFailed surfaces a failed shared catalog load once.
func (s *Service) catalogFailed(err error) {
	s.log.Error().Err(err).Msg("catalog load failed")
	if !errors.Is(err, errCatalogFill) {
		s.fail(err)
	}
}

// AddProduct creates a product with a time-derived id. Admin only.
func (s *Service) AddProduct(ctx context.Context, in domain.Product) (domain.Product, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var created domain.Product
	err := s.mutate(ctx, []persist.Collection{persist.Products}, func() ([]persist.Op, error) {
		if err := s.requireAdminLocked(); err != nil {
			return nil, err
		}
		if err := in.Validate(); err != nil {
			return nil, err
		}
		now := s.now()
		p := in.Clone()
		p.ID = now.UnixMilli()
		for s.productIndexLocked(p.ID) >= 0 {
			p.ID++
		}
		p.CreatedAt = now.UTC()
		s.products = append([]domain.Product{p}, s.products...)
		created = p.Clone()
		return []persist.Op{persist.Put(persist.GlobalRef(persist.Products), p.Key(), encode(p), nil)}, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.toasts.Success("Product Created")
	return created, nil
}

// UpdateProduct replaces an existing product. Admin only.
func (s *Service) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	err := s.mutate(ctx, []persist.Collection{persist.Products}, func() ([]persist.Op, error) {
		if err := s.requireAdminLocked(); err != nil {
			return nil, err
		}
		i := s.productIndexLocked(p.ID)
		if i < 0 {
			return nil, fmt.Errorf("product %d: %w", p.ID, domain.ErrNotFound)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		prev := s.products[i]
		p = p.Clone()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = prev.CreatedAt
		}
		s.products[i] = p
		return []persist.Op{persist.Put(persist.GlobalRef(persist.Products), p.Key(), encode(p), encode(prev))}, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.toasts.Success("Product Updated")
	return p.Clone(), nil
}

// DeleteProduct removes a product. Admin only.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	err := s.mutate(ctx, []persist.Collection{persist.Products}, func() ([]persist.Op, error) {
		if err := s.requireAdminLocked(); err != nil {
			return nil, err
		}
		i := s.productIndexLocked(id)
		if i < 0 {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}
		prev := s.products[i]
		s.products = slices.Delete(slices.Clone(s.products), i, i+1)
		return []persist.Op{persist.Delete(persist.GlobalRef(persist.Products), prev.Key(), encode(prev))}, nil
	})
	if err != nil {
		return err
	}
	s.toasts.Success("Product Deleted")
	return nil
}

// SeedCatalog replaces the whole catalog with the source's products. Admin only.
func (s *Service) SeedCatalog(ctx context.Context) ([]domain.Product, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.RLock()
	err := s.requireAdminLocked()
	s.mu.RUnlock()
	if err != nil {
		return nil, s.fail(err)
	}

	seed, err := s.source.Products(ctx)
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to fetch catalog: %w", err))
	}
	s.metrics.CatalogFetched()

	err = s.mutate(ctx, []persist.Collection{persist.Products}, func() ([]persist.Op, error) {
		ref := persist.GlobalRef(persist.Products)
		keep := make(map[int64]bool, len(seed))
		var ops []persist.Op
		for _, p := range seed {
			keep[p.ID] = true
			var prev []byte
			if i := s.productIndexLocked(p.ID); i >= 0 {
				prev = encode(s.products[i])
			}
			ops = append(ops, persist.Put(ref, p.Key(), encode(p), prev))
		}
		for _, p := range s.products {
			if !keep[p.ID] {
				ops = append(ops, persist.Delete(ref, p.Key(), encode(p)))
			}
		}
		s.products = cloneProducts(seed)
		return ops, nil
	})
	if err != nil {
		return nil, err
	}
	s.toasts.Success("Catalog Seeded")
	return cloneProducts(seed), nil
}

// ViewProduct returns the product and records it in the history, newest first without duplicates.
func (s *Service) ViewProduct(ctx context.Context, id int64) (domain.Product, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var viewed domain.Product
	err := s.mutate(ctx, []persist.Collection{persist.RecentlyViewed}, func() ([]persist.Op, error) {
		p, err := s.productLocked(id)
		if err != nil {
			return nil, err
		}
		viewed = p
		ref := s.refLocked(persist.RecentlyViewed)
		entry := domain.ViewedProduct{Product: p, ViewedAt: s.now().UTC()}

		var prev []byte
		rest := make([]domain.ViewedProduct, 0, len(s.recent))
		for _, v := range s.recent {
			if v.ID == id {
				prev = encode(v)
				continue
			}
			rest = append(rest, v)
		}
		ops := []persist.Op{persist.Put(ref, p.Key(), encode(entry), prev)}
		history := append([]domain.ViewedProduct{entry}, rest...)
		if len(history) > RecentlyViewedLimit {
			for _, v := range history[RecentlyViewedLimit:] {
				ops = append(ops, persist.Delete(ref, v.Key(), encode(v)))
			}
			history = history[:RecentlyViewedLimit]
		}
		s.recent = history
		return ops, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return viewed, nil
}

// RecentlyViewed returns the history, newest first.
func (s *Service) RecentlyViewed() []domain.ViewedProduct {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ViewedProduct, len(s.recent))
	for i, v := range s.recent {
		out[i] = domain.ViewedProduct{Product: v.Clone(), ViewedAt: v.ViewedAt}
	}
	return out
}
