package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/corc-store/internal/docstore"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWrite = errors.New("write failed")

type line struct {
	Key      string `json:"uniqueId"`
	Quantity int    `json:"quantity"`
}

// failingSnapshots fails Save for one key.
type failingSnapshots struct {
	*snapshot.MemoryStore
	failKey string
}

func (f *failingSnapshots) Save(ctx context.Context, key string, data []byte) error {
	if key == f.failKey {
		return errWrite
	}
	return f.MemoryStore.Save(ctx, key, data)
}

// sequentialStore hides the Batcher capability and fails the nth write.
type sequentialStore struct {
	mem *docstore.MemoryStore

	mu     sync.Mutex
	writes int
	failAt int
}

func (s *sequentialStore) write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failAt > 0 && s.writes == s.failAt {
		return errWrite
	}
	return nil
}

func (s *sequentialStore) Get(ctx context.Context, p docstore.Path, id string) (docstore.Document, error) {
	return s.mem.Get(ctx, p, id)
}

func (s *sequentialStore) List(ctx context.Context, p docstore.Path) ([]docstore.Document, error) {
	return s.mem.List(ctx, p)
}

func (s *sequentialStore) Set(ctx context.Context, p docstore.Path, doc docstore.Document) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.mem.Set(ctx, p, doc)
}

func (s *sequentialStore) Update(ctx context.Context, p docstore.Path, id string, fields map[string]any) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.mem.Update(ctx, p, id, fields)
}

func (s *sequentialStore) Delete(ctx context.Context, p docstore.Path, id string) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.mem.Delete(ctx, p, id)
}

func (s *sequentialStore) Subscribe(ctx context.Context, p docstore.Path, fn func([]docstore.Document)) (docstore.Unsubscribe, error) {
	return s.mem.Subscribe(ctx, p, fn)
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func checkoutChange(owner string) Change {
	return Change{Ops: []Op{
		Put(OwnedRef(owner, Orders), "ORD-1000", raw(map[string]any{"id": "ORD-1000"}), nil),
		Delete(OwnedRef(owner, Cart), "1-M", raw(line{Key: "1-M", Quantity: 2})),
		Increment(GlobalRef(Products), "1", "stock", -2, 0),
	}}
}

func seedRemote(t *testing.T, s docstore.Store, owner string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, docstore.Global("products"), docstore.Document{ID: "1", Data: raw(map[string]any{"id": 1, "stock": 5})}))
	require.NoError(t, s.Set(ctx, docstore.Owned(owner, "cart"), docstore.Document{ID: "1-M", Data: raw(line{Key: "1-M", Quantity: 2})}))
}

func stock(t *testing.T, s docstore.Store) int64 {
	t.Helper()
	d, err := s.Get(context.Background(), docstore.Global("products"), "1")
	require.NoError(t, err)
	v, err := intField(d.Data, "stock")
	require.NoError(t, err)
	return v
}

func TestCollection_Global(t *testing.T) {
	assert.True(t, Products.Global())
	assert.True(t, Reviews.Global())
	assert.False(t, Cart.Global())
	assert.NotContains(t, OwnedCollections(), Products)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "corc-cart", KeyFor(Cart))
	assert.Equal(t, "corc-recent", KeyFor(RecentlyViewed))
}

func TestLocal_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(snapshot.NewMemoryStore(), zerolog.Nop())

	lines := []line{{Key: "1-M", Quantity: 2}}
	require.NoError(t, b.Commit(ctx, Change{After: map[Collection]json.RawMessage{Cart: raw(lines)}}))

	var got []line
	require.True(t, b.Load(ctx, GlobalRef(Cart), &got))
	assert.Equal(t, lines, got)

	require.NoError(t, b.Clear(ctx, []Collection{Cart}))
	got = nil
	assert.False(t, b.Load(ctx, GlobalRef(Cart), &got))
	assert.Nil(t, got)

	_, err := b.Watch(ctx, GlobalRef(Cart), func(json.RawMessage) {})
	assert.ErrorIs(t, err, ErrWatchUnsupported)
	assert.False(t, Watchable(b))
}

func TestLocal_PartialFailureRestoresWrittenKeys(t *testing.T) {
	ctx := context.Background()
	mem := snapshot.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, KeyFor(Cart), raw([]line{{Key: "1-M", Quantity: 2}})))
	b := NewLocal(&failingSnapshots{MemoryStore: mem, failKey: KeyFor(Products)}, zerolog.Nop())

	// cart sorts before products, so it is written first.
	err := b.Commit(ctx, Change{
		After: map[Collection]json.RawMessage{
			Cart:     raw([]line{}),
			Products: raw([]map[string]any{{"id": 1, "stock": 3}}),
		},
		Before: map[Collection]json.RawMessage{
			Cart:     raw([]line{{Key: "1-M", Quantity: 2}}),
			Products: raw([]map[string]any{{"id": 1, "stock": 5}}),
		},
	})
	require.ErrorIs(t, err, ErrPartialCommit)
	assert.ErrorIs(t, err, errWrite)

	var cart []line
	require.True(t, b.Load(ctx, GlobalRef(Cart), &cart))
	assert.Equal(t, []line{{Key: "1-M", Quantity: 2}}, cart)
}

func TestLocal_FirstWriteFailureIsPlainError(t *testing.T) {
	b := NewLocal(&failingSnapshots{MemoryStore: snapshot.NewMemoryStore(), failKey: KeyFor(Cart)}, zerolog.Nop())
	err := b.Commit(context.Background(), Change{After: map[Collection]json.RawMessage{Cart: raw([]line{})}})
	require.ErrorIs(t, err, errWrite)
	assert.NotErrorIs(t, err, ErrPartialCommit)
}

func TestInMemory(t *testing.T) {
	b := NewInMemory()
	var got []line
	assert.False(t, b.Load(context.Background(), GlobalRef(Cart), &got))
	assert.NoError(t, b.Commit(context.Background(), checkoutChange("")))
	assert.False(t, Watchable(b))
}

func TestRemote_BatchCommit(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	seedRemote(t, mem, "u1")
	b := NewRemote(mem, zerolog.Nop())

	require.NoError(t, b.Commit(ctx, checkoutChange("u1")))
	assert.Equal(t, int64(3), stock(t, mem))

	var cart []line
	require.True(t, b.Load(ctx, OwnedRef("u1", Cart), &cart))
	assert.Empty(t, cart)
	var orders []map[string]any
	require.True(t, b.Load(ctx, OwnedRef("u1", Orders), &orders))
	assert.Len(t, orders, 1)
}

func TestRemote_BatchFloorRejectsOversell(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	seedRemote(t, mem, "u1")
	b := NewRemote(mem, zerolog.Nop())

	ch := checkoutChange("u1")
	ch.Ops[2].Delta = -6
	err := b.Commit(ctx, ch)
	require.ErrorIs(t, err, docstore.ErrPreconditionFailed)
	assert.Equal(t, int64(5), stock(t, mem))

	var cart []line
	require.True(t, b.Load(ctx, OwnedRef("u1", Cart), &cart))
	assert.Len(t, cart, 1)
}

func TestRemote_SequentialCompensatesOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	seedRemote(t, mem, "u1")
	// writes: order put, cart delete, stock update (fails)
	store := &sequentialStore{mem: mem, failAt: 3}
	b := NewRemote(store, zerolog.Nop())

	err := b.Commit(ctx, checkoutChange("u1"))
	require.ErrorIs(t, err, ErrPartialCommit)
	assert.ErrorIs(t, err, errWrite)

	assert.Equal(t, int64(5), stock(t, mem))
	orders, _ := mem.List(ctx, docstore.Owned("u1", "orders"))
	assert.Empty(t, orders)
	cart, _ := mem.List(ctx, docstore.Owned("u1", "cart"))
	require.Len(t, cart, 1)
	assert.JSONEq(t, `{"uniqueId":"1-M","quantity":2}`, string(cart[0].Data))
}

func TestRemote_SequentialSuccess(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	seedRemote(t, mem, "u1")
	b := NewRemote(&sequentialStore{mem: mem}, zerolog.Nop())

	require.NoError(t, b.Commit(ctx, checkoutChange("u1")))
	assert.Equal(t, int64(3), stock(t, mem))
}

func TestRemote_SequentialFloor(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	seedRemote(t, mem, "u1")
	b := NewRemote(&sequentialStore{mem: mem}, zerolog.Nop())

	ch := checkoutChange("u1")
	ch.Ops[2].Delta = -9
	err := b.Commit(ctx, ch)
	require.ErrorIs(t, err, docstore.ErrPreconditionFailed)
	require.ErrorIs(t, err, ErrPartialCommit)

	assert.Equal(t, int64(5), stock(t, mem))
	cart, _ := mem.List(ctx, docstore.Owned("u1", "cart"))
	assert.Len(t, cart, 1)
}

func TestRemote_WatchDeliversArrays(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	t.Cleanup(mem.Close)
	b := NewRemote(mem, zerolog.Nop())
	require.True(t, Watchable(b))

	var mu sync.Mutex
	var last []line
	unwatch, err := b.Watch(ctx, OwnedRef("u1", Cart), func(data json.RawMessage) {
		var lines []line
		if err := json.Unmarshal(data, &lines); err != nil {
			return
		}
		mu.Lock()
		last = lines
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unwatch()

	require.NoError(t, mem.Set(ctx, docstore.Owned("u1", "cart"), docstore.Document{ID: "1-M", Data: raw(line{Key: "1-M", Quantity: 1})}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestJoinDocuments(t *testing.T) {
	out := joinDocuments([]docstore.Document{{ID: "a", Data: raw(1)}, {ID: "b", Data: raw(2)}})
	assert.JSONEq(t, `[1,2]`, string(out))
	assert.JSONEq(t, `[]`, string(joinDocuments(nil)))
}
