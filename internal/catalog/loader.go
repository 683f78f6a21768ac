package catalog

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fjod/corc-store/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Loader fills an empty product cache from the source at most once per empty-cache condition.
type Loader struct {
	source    Source
	sfg       singleflight.Group
	fetches   atomic.Int64
	onFailure func(error)
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// OnFailure registers fn to observe failed loads. It runs once per shared fetch, not once per
// waiting caller.
func (l *Loader) OnFailure(fn func(error)) {
	l.onFailure = fn
}

// EnsureLoaded returns the cached products, or fetches, fills and returns them when cached
// reports an empty cache. Concurrent callers share one fetch.
func (l *Loader) EnsureLoaded(
	ctx context.Context,
	cached func() ([]domain.Product, bool),
	fill func([]domain.Product) error,
) ([]domain.Product, error) {
	if ps, ok := cached(); ok {
		return ps, nil
	}

	v, err, _ := l.sfg.Do("products", func() (any, error) {
		if ps, ok := cached(); ok {
			return ps, nil
		}
		l.fetches.Add(1)
		ps, err := l.source.Products(ctx)
		if err != nil {
			return nil, l.failed(fmt.Errorf("failed to fetch catalog: %w", err))
		}
		if err := fill(ps); err != nil {
			return nil, l.failed(err)
		}
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Product), nil
}

func (l *Loader) failed(err error) error {
	if l.onFailure != nil {
		l.onFailure(err)
	}
	return err
}

// Fetches reports how many times the source was queried.
func (l *Loader) Fetches() int64 {
	return l.fetches.Load()
}
