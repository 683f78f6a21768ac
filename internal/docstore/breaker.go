package docstore

import (
	"context"
	"errors"

	"github.com/fjod/corc-store/pkg/circuitbreaker"
)

// WithBreaker guards every call of s with b. Not-found and precondition results are answers,
// not outages, so they do not trip the breaker. The Batcher capability is preserved.
func WithBreaker(s Store, b *circuitbreaker.Breaker) Store {
	bs := &breakerStore{next: s, cb: b}
	if batcher, ok := s.(Batcher); ok {
		return &breakerBatcher{breakerStore: bs, batcher: batcher}
	}
	return bs
}

// IsAnswer reports errors that describe data rather than a failing store.
func IsAnswer(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPreconditionFailed)
}

type breakerStore struct {
	next Store
	cb   *circuitbreaker.Breaker
}

func (s *breakerStore) Get(ctx context.Context, p Path, id string) (Document, error) {
	var doc Document
	err := s.cb.Do(func() error {
		var err error
		doc, err = s.next.Get(ctx, p, id)
		return err
	})
	return doc, err
}

func (s *breakerStore) List(ctx context.Context, p Path) ([]Document, error) {
	var docs []Document
	err := s.cb.Do(func() error {
		var err error
		docs, err = s.next.List(ctx, p)
		return err
	})
	return docs, err
}

func (s *breakerStore) Set(ctx context.Context, p Path, doc Document) error {
	return s.cb.Do(func() error { return s.next.Set(ctx, p, doc) })
}

func (s *breakerStore) Update(ctx context.Context, p Path, id string, fields map[string]any) error {
	return s.cb.Do(func() error { return s.next.Update(ctx, p, id, fields) })
}

func (s *breakerStore) Delete(ctx context.Context, p Path, id string) error {
	return s.cb.Do(func() error { return s.next.Delete(ctx, p, id) })
}

func (s *breakerStore) Subscribe(ctx context.Context, p Path, fn func([]Document)) (Unsubscribe, error) {
	var unsub Unsubscribe
	err := s.cb.Do(func() error {
		var err error
		unsub, err = s.next.Subscribe(ctx, p, fn)
		return err
	})
	return unsub, err
}

type breakerBatcher struct {
	*breakerStore
	batcher Batcher
}

func (s *breakerBatcher) Batch() Batch {
	return &breakerBatch{Batch: s.batcher.Batch(), cb: s.cb}
}

type breakerBatch struct {
	Batch
	cb *circuitbreaker.Breaker
}

func (b *breakerBatch) Commit(ctx context.Context) error {
	return b.cb.Do(func() error { return b.Batch.Commit(ctx) })
}
