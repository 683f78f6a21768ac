package events

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
)

// Outbox holds events until they are published.
type Outbox interface {
	Add(ctx context.Context, e Event) error
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id string) error
}

type MemoryOutbox struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (m *MemoryOutbox) Add(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryOutbox) Pending(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.events))
	return slices.Clone(m.events[:n]), nil
}

func (m *MemoryOutbox) MarkPublished(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = slices.DeleteFunc(m.events, func(e Event) bool { return e.ID == id })
	return nil
}

// SnapshotOutbox keeps pending events under one snapshot key so they survive a restart.
type SnapshotOutbox struct {
	store snapshot.Store
	log   zerolog.Logger
	mu    sync.Mutex
}

var outboxKey = snapshot.Key("outbox")

func NewSnapshotOutbox(store snapshot.Store, log zerolog.Logger) *SnapshotOutbox {
	return &SnapshotOutbox{store: store, log: log}
}

// load reads the pending events. A failed read is returned so that a rewrite never drops them.
func (s *SnapshotOutbox) load(ctx context.Context) ([]Event, error) {
	var events []Event
	if _, err := snapshot.ReadJSON(ctx, s.store, outboxKey, &events); err != nil {
		s.log.Error().Err(err).Msg("failed to read outbox")
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return events, nil
}

func (s *SnapshotOutbox) Add(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load(ctx)
	if err != nil {
		return err
	}
	return snapshot.SaveJSON(ctx, s.store, outboxKey, append(events, e))
}

func (s *SnapshotOutbox) Pending(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return events[:min(limit, len(events))], nil
}

func (s *SnapshotOutbox) MarkPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load(ctx)
	if err != nil {
		return err
	}
	return snapshot.SaveJSON(ctx, s.store, outboxKey, slices.DeleteFunc(events, func(e Event) bool { return e.ID == id }))
}
