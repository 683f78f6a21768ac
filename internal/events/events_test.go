package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher fails while failing is set.
type recordingPublisher struct {
	mu        sync.Mutex
	published []Event
	failing   bool
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("broker unavailable")
	}
	r.published = append(r.published, e)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func order(id string) domain.Order {
	return domain.Order{
		ID:    id,
		Items: []domain.CartLine{{Key: "1-M", ProductID: 1, Quantity: 2, Price: decimal.NewFromInt(55)}},
		Total: decimal.NewFromInt(110),
	}
}

func TestNewOrderPlaced(t *testing.T) {
	e, err := NewOrderPlaced(order("ORD-1234"))
	require.NoError(t, err)
	assert.Equal(t, EventTypeOrderPlaced, e.Type)
	assert.Equal(t, "ORD-1234", e.AggregateID)
	assert.NotEmpty(t, e.ID)

	var p OrderPlacedPayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	assert.Equal(t, "110", p.Total)
	assert.Len(t, p.Items, 1)
}

func outboxes() map[string]Outbox {
	return map[string]Outbox{
		"memory":   NewMemoryOutbox(),
		"snapshot": NewSnapshotOutbox(snapshot.NewMemoryStore(), zerolog.Nop()),
	}
}

func TestPoller_PublishesAndRetries(t *testing.T) {
	ctx := context.Background()
	for name, outbox := range outboxes() {
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{failing: true}
			p := NewPoller(outbox, pub, time.Hour, zerolog.Nop())

			for _, id := range []string{"ORD-1000", "ORD-2000"} {
				e, err := NewOrderPlaced(order(id))
				require.NoError(t, err)
				require.NoError(t, outbox.Add(ctx, e))
			}

			assert.Zero(t, p.Flush(ctx))
			pending, err := outbox.Pending(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, pending, 2)

			pub.failing = false
			assert.Equal(t, 2, p.Flush(ctx))
			pending, err = outbox.Pending(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
			assert.Equal(t, "ORD-1000", pub.published[0].AggregateID)
		})
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	outbox := NewMemoryOutbox()
	pub := &recordingPublisher{}
	p := NewPoller(outbox, pub, 5*time.Millisecond, zerolog.Nop())

	e, err := NewOrderPlaced(order("ORD-1000"))
	require.NoError(t, err)
	require.NoError(t, outbox.Add(context.Background(), e))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}

// unreadableStore fails every Load while failing is set.
type unreadableStore struct {
	*snapshot.MemoryStore
	failing atomic.Bool
}

func (u *unreadableStore) Load(ctx context.Context, key string) ([]byte, error) {
	if u.failing.Load() {
		return nil, errors.New("connection reset")
	}
	return u.MemoryStore.Load(ctx, key)
}

func TestSnapshotOutbox_ReadFailureKeepsPendingEvents(t *testing.T) {
	ctx := context.Background()
	store := &unreadableStore{MemoryStore: snapshot.NewMemoryStore()}
	outbox := NewSnapshotOutbox(store, zerolog.Nop())

	first, err := NewOrderPlaced(order("ORD-1001"))
	require.NoError(t, err)
	second, err := NewOrderPlaced(order("ORD-1002"))
	require.NoError(t, err)
	require.NoError(t, outbox.Add(ctx, first))
	require.NoError(t, outbox.Add(ctx, second))

	store.failing.Store(true)
	assert.Error(t, outbox.MarkPublished(ctx, first.ID))
	third, err := NewOrderPlaced(order("ORD-1003"))
	require.NoError(t, err)
	assert.Error(t, outbox.Add(ctx, third))
	_, err = outbox.Pending(ctx, 10)
	assert.Error(t, err)

	store.failing.Store(false)
	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}
