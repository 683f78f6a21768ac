// Package toast is the ephemeral notification bus. Toasts remove themselves after a fixed
// lifetime and are never persisted.
package toast

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/fjod/corc-store/internal/domain"
)

const DefaultTTL = 3 * time.Second

var ErrUnknownToast = errors.New("unknown toast")

type Bus struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	nextID uint64
	toasts []domain.Toast
	timers map[uint64]*time.Timer
	closed bool
	// onChange runs after every push or removal, outside the lock.
	onChange func([]domain.Toast)
}

func NewBus(ttl time.Duration) *Bus {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Bus{
		ttl:    ttl,
		now:    time.Now,
		timers: make(map[uint64]*time.Timer),
	}
}

// OnChange registers a single observer of the toast list.
func (b *Bus) OnChange(fn func([]domain.Toast)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Push shows message and schedules its removal. It returns the toast id.
func (b *Bus) Push(kind domain.ToastKind, message string) uint64 {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	b.nextID++
	id := b.nextID
	b.toasts = append(b.toasts, domain.Toast{ID: id, Kind: kind, Message: message, CreatedAt: b.now()})
	b.timers[id] = time.AfterFunc(b.ttl, func() { b.expire(id) })
	snapshot, fn := b.snapshotLocked(), b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return id
}

func (b *Bus) Info(message string) uint64    { return b.Push(domain.ToastInfo, message) }
func (b *Bus) Success(message string) uint64 { return b.Push(domain.ToastSuccess, message) }
func (b *Bus) Error(message string) uint64   { return b.Push(domain.ToastError, message) }

// Dismiss removes the toast early. Dismissing an expired or unknown id returns ErrUnknownToast
// and changes nothing.
func (b *Bus) Dismiss(id uint64) error {
	if !b.remove(id) {
		return ErrUnknownToast
	}
	return nil
}

func (b *Bus) List() []domain.Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Close stops all pending timers and drops every toast.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.toasts = nil
}

func (b *Bus) expire(id uint64) {
	b.remove(id)
}

func (b *Bus) remove(id uint64) bool {
	b.mu.Lock()
	i := slices.IndexFunc(b.toasts, func(t domain.Toast) bool { return t.ID == id })
	if i < 0 {
		b.mu.Unlock()
		return false
	}
	b.toasts = slices.Delete(b.toasts, i, i+1)
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	snapshot, fn := b.snapshotLocked(), b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return true
}

func (b *Bus) snapshotLocked() []domain.Toast {
	return append([]domain.Toast{}, b.toasts...)
}
