package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is an in-process document store with atomic batches and coalescing subscriptions.
type MemoryStore struct {
	mu     sync.RWMutex
	colls  map[Path]map[string]json.RawMessage
	subs   map[Path]map[*subscriber]struct{}
	wg     sync.WaitGroup
	closed bool
}

var _ Batcher = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[Path]map[string]json.RawMessage),
		subs:  make(map[Path]map[*subscriber]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, p Path, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.colls[p][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", p, id, ErrNotFound)
	}
	return Document{ID: id, Data: clone(data)}, nil
}

func (m *MemoryStore) List(_ context.Context, p Path) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(p), nil
}

func (m *MemoryStore) Set(_ context.Context, p Path, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collLocked(p)[doc.ID] = clone(doc.Data)
	m.notifyLocked(p)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, p Path, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collLocked(p)
	data, ok := c[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", p, id, ErrNotFound)
	}
	merged, err := mergeFields(data, fields)
	if err != nil {
		return err
	}
	c[id] = merged
	m.notifyLocked(p)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, p Path, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.colls[p]
	if _, ok := c[id]; !ok {
		return nil
	}
	delete(c, id)
	m.notifyLocked(p)
	return nil
}

func (m *MemoryStore) Batch() Batch {
	return &memoryBatch{store: m}
}

func (m *MemoryStore) Subscribe(ctx context.Context, p Path, fn func([]Document)) (Unsubscribe, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: store closed", p)
	}
	s := newSubscriber(fn)
	if m.subs[p] == nil {
		m.subs[p] = make(map[*subscriber]struct{})
	}
	m.subs[p][s] = struct{}{}
	s.offer(m.snapshotLocked(p))
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		s.run(ctx)
		m.unsubscribe(p, s)
	}()

	return func() { m.unsubscribe(p, s) }, nil
}

// Close stops every subscription and waits for their goroutines.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	m.closed = true
	var all []*subscriber
	for p, set := range m.subs {
		for s := range set {
			all = append(all, s)
		}
		delete(m.subs, p)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	m.wg.Wait()
}

func (m *MemoryStore) unsubscribe(p Path, s *subscriber) {
	m.mu.Lock()
	delete(m.subs[p], s)
	m.mu.Unlock()
	s.stop()
}

func (m *MemoryStore) collLocked(p Path) map[string]json.RawMessage {
	c, ok := m.colls[p]
	if !ok {
		c = make(map[string]json.RawMessage)
		m.colls[p] = c
	}
	return c
}

func (m *MemoryStore) snapshotLocked(p Path) []Document {
	c := m.colls[p]
	ids := slices.Sorted(maps.Keys(c))
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{ID: id, Data: clone(c[id])})
	}
	return docs
}

func (m *MemoryStore) notifyLocked(p Path) {
	if len(m.subs[p]) == 0 {
		return
	}
	docs := m.snapshotLocked(p)
	for s := range m.subs[p] {
		s.offer(docs)
	}
}

type memoryBatch struct {
	ops
	store *MemoryStore
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[Path]map[string]json.RawMessage)
	stage := func(p Path) map[string]json.RawMessage {
		if c, ok := staged[p]; ok {
			return c
		}
		c := maps.Clone(m.colls[p])
		if c == nil {
			c = make(map[string]json.RawMessage)
		}
		staged[p] = c
		return c
	}

	for _, op := range b.list {
		c := stage(op.path)
		switch op.kind {
		case opSet:
			c[op.id] = clone(op.data)
		case opDelete:
			delete(c, op.id)
		case opIncrement:
			data, ok := c[op.id]
			if !ok {
				return fmt.Errorf("%s/%s: %w", op.path, op.id, ErrNotFound)
			}
			next, err := incrementField(data, op.field, op.delta, op.min)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", op.path, op.id, err)
			}
			c[op.id] = next
		}
	}

	for p, c := range staged {
		m.colls[p] = c
		m.notifyLocked(p)
	}
	return nil
}

// subscriber keeps only the latest undelivered snapshot.
type subscriber struct {
	fn   func([]Document)
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	latest []Document
	ready  bool
}

func newSubscriber(fn func([]Document)) *subscriber {
	return &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscriber) offer(docs []Document) {
	s.mu.Lock()
	s.latest = docs
	s.ready = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() ([]Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, false
	}
	docs := s.latest
	s.latest, s.ready = nil, false
	return docs, true
}

func (s *subscriber) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.wake:
			if docs, ok := s.take(); ok {
				s.fn(docs)
			}
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func clone(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}
